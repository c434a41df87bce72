package store

import (
	"sync"

	"iot-sim/internal/models"
)

// MemoryDeviceStore is a thread-safe in-memory device store. It clones on
// every boundary crossing, in and out: cascades for independent root events
// run concurrently, and a shared pointer would let one cascade's state
// overwrite tear another's in-flight read or broadcast marshal.
type MemoryDeviceStore struct {
	mu      sync.RWMutex
	devices map[string]*models.Device
	order   []string
}

func NewMemoryDeviceStore() *MemoryDeviceStore {
	return &MemoryDeviceStore{devices: make(map[string]*models.Device)}
}

func (s *MemoryDeviceStore) Get(id string) (*models.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	device, ok := s.devices[id]
	return device.Clone(), ok
}

func (s *MemoryDeviceStore) Save(device *models.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.devices[device.ID]; !exists {
		s.order = append(s.order, device.ID)
	}
	s.devices[device.ID] = device.Clone()
}

func (s *MemoryDeviceStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[id]; !ok {
		return false
	}
	delete(s.devices, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *MemoryDeviceStore) List() []*models.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	devices := make([]*models.Device, 0, len(s.order))
	for _, id := range s.order {
		devices = append(devices, s.devices[id].Clone())
	}
	return devices
}

// ActiveSimulations returns the devices whose simulation gate is open.
func (s *MemoryDeviceStore) ActiveSimulations() []*models.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active []*models.Device
	for _, id := range s.order {
		if device := s.devices[id]; device.SimulationActive {
			active = append(active, device.Clone())
		}
	}
	return active
}

// MemoryRuleStore is a thread-safe in-memory rule store with a
// triggerDeviceId index so the engine only loads rules relevant to a
// changed device. Like the device store, it clones at every boundary.
type MemoryRuleStore struct {
	mu       sync.RWMutex
	rules    map[string]*models.Rule
	order    []string
	byDevice map[string][]string
}

func NewMemoryRuleStore() *MemoryRuleStore {
	return &MemoryRuleStore{
		rules:    make(map[string]*models.Rule),
		byDevice: make(map[string][]string),
	}
}

func (s *MemoryRuleStore) Get(id string) (*models.Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[id]
	return rule.Clone(), ok
}

func (s *MemoryRuleStore) Save(rule *models.Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, exists := s.rules[rule.ID]
	if !exists {
		s.order = append(s.order, rule.ID)
		s.byDevice[rule.TriggerDeviceID] = append(s.byDevice[rule.TriggerDeviceID], rule.ID)
	} else if existing.TriggerDeviceID != rule.TriggerDeviceID {
		s.removeFromIndex(existing.TriggerDeviceID, rule.ID)
		s.byDevice[rule.TriggerDeviceID] = append(s.byDevice[rule.TriggerDeviceID], rule.ID)
	}
	s.rules[rule.ID] = rule.Clone()
}

func (s *MemoryRuleStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[id]
	if !ok {
		return false
	}
	delete(s.rules, id)
	s.removeFromIndex(rule.TriggerDeviceID, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *MemoryRuleStore) List() []*models.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rules := make([]*models.Rule, 0, len(s.order))
	for _, id := range s.order {
		rules = append(rules, s.rules[id].Clone())
	}
	return rules
}

// ForTriggerDevice returns the rules bound to deviceID in creation order.
func (s *MemoryRuleStore) ForTriggerDevice(deviceID string) []*models.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byDevice[deviceID]
	rules := make([]*models.Rule, 0, len(ids))
	for _, id := range ids {
		rules = append(rules, s.rules[id].Clone())
	}
	return rules
}

func (s *MemoryRuleStore) removeFromIndex(deviceID, ruleID string) {
	ids := s.byDevice[deviceID]
	for i, id := range ids {
		if id == ruleID {
			s.byDevice[deviceID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(s.byDevice[deviceID]) == 0 {
		delete(s.byDevice, deviceID)
	}
}
