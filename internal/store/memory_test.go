package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iot-sim/internal/models"
)

func TestMemoryDeviceStoreCRUD(t *testing.T) {
	s := NewMemoryDeviceStore()

	_, ok := s.Get("d1")
	assert.False(t, ok)

	s.Save(&models.Device{ID: "d1", Name: "first"})
	s.Save(&models.Device{ID: "d2", Name: "second"})

	device, ok := s.Get("d1")
	require.True(t, ok)
	assert.Equal(t, "first", device.Name)

	assert.Len(t, s.List(), 2)
	assert.Equal(t, "d1", s.List()[0].ID)

	require.True(t, s.Delete("d1"))
	assert.False(t, s.Delete("d1"))
	assert.Len(t, s.List(), 1)
}

func TestMemoryDeviceStoreHandsOutPrivateCopies(t *testing.T) {
	s := NewMemoryDeviceStore()
	s.Save(&models.Device{ID: "d1", CurrentState: json.RawMessage(`{"temp": 20}`)})

	first, _ := s.Get("d1")
	first.CurrentState = json.RawMessage(`{"temp": 99}`)
	first.Online = true

	// Mutations are invisible until saved back.
	second, _ := s.Get("d1")
	assert.JSONEq(t, `{"temp": 20}`, string(second.CurrentState))
	assert.False(t, second.Online)

	s.Save(first)
	third, _ := s.Get("d1")
	assert.JSONEq(t, `{"temp": 99}`, string(third.CurrentState))

	// The saved pointer stays private to the caller too.
	first.CurrentState = json.RawMessage(`{"temp": 0}`)
	fourth, _ := s.Get("d1")
	assert.JSONEq(t, `{"temp": 99}`, string(fourth.CurrentState))
}

func TestMemoryRuleStoreHandsOutPrivateCopies(t *testing.T) {
	s := NewMemoryRuleStore()
	s.Save(&models.Rule{ID: "r1", TriggerDeviceID: "a"})

	first, _ := s.Get("r1")
	first.Active = true

	second, _ := s.Get("r1")
	assert.False(t, second.Active)

	s.Save(first)
	third, _ := s.Get("r1")
	assert.True(t, third.Active)
}

func TestMemoryDeviceStoreActiveSimulations(t *testing.T) {
	s := NewMemoryDeviceStore()
	s.Save(&models.Device{ID: "on", SimulationActive: true})
	s.Save(&models.Device{ID: "off"})

	active := s.ActiveSimulations()
	require.Len(t, active, 1)
	assert.Equal(t, "on", active[0].ID)
}

func TestMemoryRuleStoreTriggerIndex(t *testing.T) {
	s := NewMemoryRuleStore()
	s.Save(&models.Rule{ID: "r1", TriggerDeviceID: "a"})
	s.Save(&models.Rule{ID: "r2", TriggerDeviceID: "b"})
	s.Save(&models.Rule{ID: "r3", TriggerDeviceID: "a"})

	forA := s.ForTriggerDevice("a")
	require.Len(t, forA, 2)
	assert.Equal(t, "r1", forA[0].ID)
	assert.Equal(t, "r3", forA[1].ID)

	assert.Len(t, s.ForTriggerDevice("b"), 1)
	assert.Empty(t, s.ForTriggerDevice("c"))
}

func TestMemoryRuleStoreReindexOnSave(t *testing.T) {
	s := NewMemoryRuleStore()
	s.Save(&models.Rule{ID: "r1", TriggerDeviceID: "a"})

	// rebinding the trigger device moves the rule in the index
	s.Save(&models.Rule{ID: "r1", TriggerDeviceID: "b"})

	assert.Empty(t, s.ForTriggerDevice("a"))
	require.Len(t, s.ForTriggerDevice("b"), 1)
}

func TestMemoryRuleStoreDelete(t *testing.T) {
	s := NewMemoryRuleStore()
	s.Save(&models.Rule{ID: "r1", TriggerDeviceID: "a"})

	require.True(t, s.Delete("r1"))
	assert.Empty(t, s.ForTriggerDevice("a"))
	assert.Empty(t, s.List())
	assert.False(t, s.Delete("r1"))
}
