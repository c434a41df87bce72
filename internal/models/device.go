package models

import "encoding/json"

// DeviceType distinguishes real hardware from simulated devices
type DeviceType string

const (
	DeviceTypePhysical DeviceType = "PHYSICAL"
	DeviceTypeVirtual  DeviceType = "VIRTUAL"
)

// DeviceRole describes the I/O direction of a device
type DeviceRole string

const (
	DeviceRoleSensor   DeviceRole = "SENSOR"
	DeviceRoleActuator DeviceRole = "ACTUATOR"
)

// Device represents an IoT device in the system. CurrentState is an opaque
// JSON document that is replaced wholesale on every update, never merged.
type Device struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Type             DeviceType      `json:"type"`
	Role             DeviceRole      `json:"role"`
	CurrentState     json.RawMessage `json:"currentState"`
	SimulationConfig json.RawMessage `json:"simulationConfig,omitempty"`
	SimulationActive bool            `json:"simulationActive"`
	Online           bool            `json:"online"`
}

// Clone returns a deep copy. Stores hand out clones so one caller's state
// overwrite can never tear another caller's in-flight read of the same
// device.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	clone := *d
	clone.CurrentState = append(json.RawMessage(nil), d.CurrentState...)
	clone.SimulationConfig = append(json.RawMessage(nil), d.SimulationConfig...)
	return &clone
}

// DeviceEvent is a device-state-change event. State may be a bare field map
// or a {"sensors": {...}} wrapper; consumers unwrap the sensors object if
// present.
type DeviceEvent struct {
	DeviceID string          `json:"deviceId"`
	State    json.RawMessage `json:"state"`
}
