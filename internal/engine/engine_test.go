package engine

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iot-sim/internal/models"
	"iot-sim/internal/store"
)

type fakeAggregator struct {
	value float64
	ok    bool
	calls int
}

func (f *fakeAggregator) QueryAggregate(deviceID, field, rng string, fn models.AggregateFunction) (float64, bool) {
	f.calls++
	return f.value, f.ok
}

type recordingNotifier struct {
	updates []*models.Device
}

func (r *recordingNotifier) NotifyDeviceUpdate(device *models.Device) {
	r.updates = append(r.updates, device)
}

type recordingCommands struct {
	commands []models.DeviceEvent
}

func (r *recordingCommands) QueueCommand(deviceID string, payload []byte) {
	r.commands = append(r.commands, models.DeviceEvent{DeviceID: deviceID, State: payload})
}

type fixture struct {
	devices  *store.MemoryDeviceStore
	rules    *store.MemoryRuleStore
	notifier *recordingNotifier
	commands *recordingCommands
	engine   *Engine
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		devices:  store.NewMemoryDeviceStore(),
		rules:    store.NewMemoryRuleStore(),
		notifier: &recordingNotifier{},
		commands: &recordingCommands{},
	}
	cfg.Devices = f.devices
	cfg.Rules = f.rules
	cfg.Notifier = f.notifier
	cfg.Commands = f.commands
	f.engine = New(cfg)
	return f
}

func stateTriggerRule(id, name, deviceID, path string, op models.RuleOperator, value string, targetID, newState string) *models.Rule {
	trigger := fmt.Sprintf(`{"deviceId":%q,"path":%q,"operator":%q,"value":%q}`, deviceID, path, op, value)
	action := fmt.Sprintf(`{"deviceId":%q,"newState":%s}`, targetID, newState)
	return &models.Rule{
		ID:              id,
		Name:            name,
		TriggerConfig:   json.RawMessage(trigger),
		ActionConfig:    json.RawMessage(action),
		TriggerDeviceID: deviceID,
	}
}

func TestStateTriggerCascadeFiresOncePerRisingEdge(t *testing.T) {
	f := newFixture(t, Config{})
	f.devices.Save(&models.Device{ID: "A", CurrentState: json.RawMessage(`{"temp": 25}`)})
	f.devices.Save(&models.Device{ID: "B", CurrentState: json.RawMessage(`{}`)})
	f.rules.Save(stateTriggerRule("r1", "heat on", "A", "$.temp", models.OperatorGreaterThan, "20", "B", `{"status":"ON"}`))

	deviceA, _ := f.devices.Get("A")
	f.engine.ProcessEvent(deviceA)

	deviceB, _ := f.devices.Get("B")
	assert.JSONEq(t, `{"status":"ON"}`, string(deviceB.CurrentState))

	rule, _ := f.rules.Get("r1")
	assert.True(t, rule.Active)
	require.Len(t, f.commands.commands, 1)
	assert.Equal(t, "B", f.commands.commands[0].DeviceID)

	// Second event with the condition still true is a no-op.
	deviceA.CurrentState = json.RawMessage(`{"temp": 26}`)
	f.devices.Save(deviceA)
	f.engine.ProcessEvent(deviceA)

	assert.Len(t, f.commands.commands, 1, "edge-triggered rule must not re-fire while active")
}

func TestFallingEdgeResetsAndReArmsRule(t *testing.T) {
	f := newFixture(t, Config{})
	f.devices.Save(&models.Device{ID: "A", CurrentState: json.RawMessage(`{"temp": 25}`)})
	f.devices.Save(&models.Device{ID: "B", CurrentState: json.RawMessage(`{}`)})
	f.rules.Save(stateTriggerRule("r1", "heat on", "A", "temp", models.OperatorGreaterThan, "20", "B", `{"status":"ON"}`))

	deviceA, _ := f.devices.Get("A")
	f.engine.ProcessEvent(deviceA)
	require.Len(t, f.commands.commands, 1)

	// Condition goes false: rule resets, no action.
	deviceA.CurrentState = json.RawMessage(`{"temp": 15}`)
	f.devices.Save(deviceA)
	f.engine.ProcessEvent(deviceA)

	rule, _ := f.rules.Get("r1")
	assert.False(t, rule.Active)
	assert.Len(t, f.commands.commands, 1)

	// Condition true again: exactly one more firing.
	deviceA.CurrentState = json.RawMessage(`{"temp": 30}`)
	f.devices.Save(deviceA)
	f.engine.ProcessEvent(deviceA)

	assert.Len(t, f.commands.commands, 2)
}

func TestMutualFeedbackCycleIsBoundedByDepth(t *testing.T) {
	const maxDepth = 5
	f := newFixture(t, Config{MaxRecursionDepth: maxDepth})
	f.devices.Save(&models.Device{ID: "A", CurrentState: json.RawMessage(`{"x": 1}`)})
	f.devices.Save(&models.Device{ID: "B", CurrentState: json.RawMessage(`{}`)})
	f.rules.Save(stateTriggerRule("ra", "a->b", "A", "x", models.OperatorEquals, "1", "B", `{"x":1}`))
	f.rules.Save(stateTriggerRule("rb", "b->a", "B", "x", models.OperatorEquals, "1", "A", `{"x":1}`))

	deviceA, _ := f.devices.Get("A")
	f.engine.ProcessEvent(deviceA)

	// One rule per device: the cascade halts after at most maxDepth actions.
	assert.LessOrEqual(t, len(f.commands.commands), maxDepth)
	assert.NotEmpty(t, f.commands.commands)
}

func TestAggregateTriggerFiresOncePerRisingEdge(t *testing.T) {
	agg := &fakeAggregator{value: 30.0, ok: true}
	f := newFixture(t, Config{Aggregator: agg})
	f.devices.Save(&models.Device{ID: "A", CurrentState: json.RawMessage(`{}`)})
	f.devices.Save(&models.Device{ID: "B", CurrentState: json.RawMessage(`{}`)})
	f.rules.Save(&models.Rule{
		ID:              "r1",
		Name:            "mean temp high",
		TriggerConfig:   json.RawMessage(`{"deviceId":"A","aggregate":"MEAN","field":"temp","range":"5m","operator":"GREATER_THAN","value":"25"}`),
		ActionConfig:    json.RawMessage(`{"deviceId":"B","newState":{"alarm":true}}`),
		TriggerDeviceID: "A",
	})

	deviceA, _ := f.devices.Get("A")
	f.engine.ProcessEvent(deviceA)
	f.engine.ProcessEvent(deviceA)

	assert.Len(t, f.commands.commands, 1)
	assert.Equal(t, 2, agg.calls)
}

func TestEmptyAggregateResultMeansConditionNotMet(t *testing.T) {
	f := newFixture(t, Config{Aggregator: &fakeAggregator{ok: false}})
	f.devices.Save(&models.Device{ID: "A", CurrentState: json.RawMessage(`{}`)})
	f.rules.Save(&models.Rule{
		ID:              "r1",
		TriggerConfig:   json.RawMessage(`{"deviceId":"A","aggregate":"MEAN","field":"temp","range":"5m","operator":"GREATER_THAN","value":"0"}`),
		ActionConfig:    json.RawMessage(`{"deviceId":"A","newState":{}}`),
		TriggerDeviceID: "A",
	})

	deviceA, _ := f.devices.Get("A")
	f.engine.ProcessEvent(deviceA)

	assert.Empty(t, f.commands.commands)
}

func TestAggregateTriggerWithoutStoreIsNotMet(t *testing.T) {
	f := newFixture(t, Config{Aggregator: nil})
	f.devices.Save(&models.Device{ID: "A", CurrentState: json.RawMessage(`{}`)})
	f.rules.Save(&models.Rule{
		ID:              "r1",
		TriggerConfig:   json.RawMessage(`{"deviceId":"A","aggregate":"MAX","field":"temp","range":"1h","operator":"GREATER_THAN","value":"0"}`),
		ActionConfig:    json.RawMessage(`{"deviceId":"A","newState":{}}`),
		TriggerDeviceID: "A",
	})

	deviceA, _ := f.devices.Get("A")
	f.engine.ProcessEvent(deviceA)

	assert.Empty(t, f.commands.commands)
}

func TestMissingPathIsNotMet(t *testing.T) {
	f := newFixture(t, Config{})
	f.devices.Save(&models.Device{ID: "A", CurrentState: json.RawMessage(`{"temp": 25}`)})
	f.rules.Save(stateTriggerRule("r1", "missing", "A", "humidity", models.OperatorGreaterThan, "0", "A", `{}`))

	deviceA, _ := f.devices.Get("A")
	f.engine.ProcessEvent(deviceA)

	assert.Empty(t, f.commands.commands)
	rule, _ := f.rules.Get("r1")
	assert.False(t, rule.Active)
}

func TestMissingTargetDeviceIsNoOp(t *testing.T) {
	f := newFixture(t, Config{})
	f.devices.Save(&models.Device{ID: "A", CurrentState: json.RawMessage(`{"temp": 25}`)})
	f.rules.Save(stateTriggerRule("r1", "ghost target", "A", "temp", models.OperatorGreaterThan, "20", "ghost", `{"on":true}`))

	deviceA, _ := f.devices.Get("A")
	f.engine.ProcessEvent(deviceA)

	assert.Empty(t, f.commands.commands)
	assert.Empty(t, f.notifier.updates)
}

func TestMalformedRuleDoesNotAbortSiblings(t *testing.T) {
	f := newFixture(t, Config{})
	f.devices.Save(&models.Device{ID: "A", CurrentState: json.RawMessage(`{"temp": 25}`)})
	f.devices.Save(&models.Device{ID: "B", CurrentState: json.RawMessage(`{}`)})
	f.rules.Save(&models.Rule{
		ID:              "broken",
		TriggerConfig:   json.RawMessage(`{not json`),
		ActionConfig:    json.RawMessage(`{}`),
		TriggerDeviceID: "A",
	})
	f.rules.Save(stateTriggerRule("ok", "sibling", "A", "temp", models.OperatorGreaterThan, "20", "B", `{"status":"ON"}`))

	deviceA, _ := f.devices.Get("A")
	f.engine.ProcessEvent(deviceA)

	require.Len(t, f.commands.commands, 1)
	assert.Equal(t, "B", f.commands.commands[0].DeviceID)
}

func TestStringEqualityFallbackForEquals(t *testing.T) {
	f := newFixture(t, Config{})
	f.devices.Save(&models.Device{ID: "A", CurrentState: json.RawMessage(`{"mode": "AUTO"}`)})
	f.devices.Save(&models.Device{ID: "B", CurrentState: json.RawMessage(`{}`)})
	f.rules.Save(stateTriggerRule("r1", "mode auto", "A", "mode", models.OperatorEquals, "AUTO", "B", `{"on":true}`))
	f.rules.Save(stateTriggerRule("r2", "mode greater", "A", "mode", models.OperatorGreaterThan, "AUTO", "B", `{"on":true}`))

	deviceA, _ := f.devices.Get("A")
	f.engine.ProcessEvent(deviceA)

	// EQUALS falls back to string equality; GREATER_THAN does not.
	assert.Len(t, f.commands.commands, 1)
}

// marshalingNotifier serializes every update it receives, the way the hub
// does before broadcasting.
type marshalingNotifier struct {
	mu     sync.Mutex
	failed int
}

func (n *marshalingNotifier) NotifyDeviceUpdate(device *models.Device) {
	if _, err := json.Marshal(device); err != nil {
		n.mu.Lock()
		n.failed++
		n.mu.Unlock()
	}
}

func TestConcurrentCascadesTargetingOneDevice(t *testing.T) {
	devices := store.NewMemoryDeviceStore()
	rules := store.NewMemoryRuleStore()
	notifier := &marshalingNotifier{}
	eng := New(Config{Devices: devices, Rules: rules, Notifier: notifier})

	devices.Save(&models.Device{ID: "A1", CurrentState: json.RawMessage(`{"x": 1}`)})
	devices.Save(&models.Device{ID: "A2", CurrentState: json.RawMessage(`{"x": 1}`)})
	devices.Save(&models.Device{ID: "C", CurrentState: json.RawMessage(`{}`)})

	// Both rules overwrite C's state; re-save them each round so every
	// round fires both actions again.
	for i := 0; i < 25; i++ {
		rules.Save(stateTriggerRule("ra1", "a1->c", "A1", "x", models.OperatorEquals, "1", "C", `{"from":"a1"}`))
		rules.Save(stateTriggerRule("ra2", "a2->c", "A2", "x", models.OperatorEquals, "1", "C", `{"from":"a2"}`))

		var wg sync.WaitGroup
		for _, id := range []string{"A1", "A2"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				device, _ := devices.Get(id)
				eng.ProcessEvent(device)
			}(id)
		}
		wg.Wait()
	}

	assert.Zero(t, notifier.failed)
	deviceC, _ := devices.Get("C")
	var state map[string]string
	require.NoError(t, json.Unmarshal(deviceC.CurrentState, &state))
	assert.Contains(t, []string{"a1", "a2"}, state["from"])
}

func TestNestedStatePath(t *testing.T) {
	f := newFixture(t, Config{})
	f.devices.Save(&models.Device{ID: "A", CurrentState: json.RawMessage(`{"env": {"temp": 30}}`)})
	f.devices.Save(&models.Device{ID: "B", CurrentState: json.RawMessage(`{}`)})
	f.rules.Save(stateTriggerRule("r1", "nested", "A", "$.env.temp", models.OperatorGreaterThan, "25", "B", `{"fan":"ON"}`))

	deviceA, _ := f.devices.Get("A")
	f.engine.ProcessEvent(deviceA)

	assert.Len(t, f.commands.commands, 1)
}
