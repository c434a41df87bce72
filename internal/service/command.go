package service

import (
	"log"

	"iot-sim/internal/engine"
	"iot-sim/internal/models"
	"iot-sim/internal/store"
)

// CommandRouter routes the engine's outbound commands. Commands for
// physical devices go to the message bus. Commands for virtual devices stay
// in-process: the engine has already applied the new state to them, so
// publishing to the bus would only echo the update back at the broker.
type CommandRouter struct {
	devices store.DeviceStore
	bus     engine.CommandPublisher
}

func NewCommandRouter(devices store.DeviceStore, bus engine.CommandPublisher) *CommandRouter {
	return &CommandRouter{devices: devices, bus: bus}
}

// QueueCommand implements engine.CommandPublisher.
func (r *CommandRouter) QueueCommand(deviceID string, payload []byte) {
	if device, ok := r.devices.Get(deviceID); ok && device.Type == models.DeviceTypeVirtual {
		log.Printf("COMMAND: Device %s is virtual, command applied in-process", deviceID)
		return
	}
	if r.bus == nil {
		log.Printf("COMMAND: No bus configured, dropping command for device %s", deviceID)
		return
	}
	r.bus.QueueCommand(deviceID, payload)
}
