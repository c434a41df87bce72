package store

import "iot-sim/internal/models"

// DeviceStore is the device half of the external entity-store contract the
// engine and generator depend on. The in-memory implementation in this
// package stands in for a persistent store; each method is a complete unit
// from the caller's perspective, and returned entities are private to the
// caller: mutating one has no effect until it is passed back to Save.
type DeviceStore interface {
	Get(id string) (*models.Device, bool)
	Save(device *models.Device)
	Delete(id string) bool
	List() []*models.Device
	ActiveSimulations() []*models.Device
}

// RuleStore is the rule half of the contract. ForTriggerDevice returns rules
// in a stable order (creation order), which fixes action ordering within one
// cascade.
type RuleStore interface {
	Get(id string) (*models.Rule, bool)
	Save(rule *models.Rule)
	Delete(id string) bool
	List() []*models.Rule
	ForTriggerDevice(deviceID string) []*models.Rule
}
