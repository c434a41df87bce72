package service

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"iot-sim/internal/engine"
	"iot-sim/internal/models"
	"iot-sim/internal/store"
)

// TimeSeriesWriter persists sensor payloads; the ClickHouse client
// implements it. Write failures never surface here.
type TimeSeriesWriter interface {
	WriteSensorPoint(deviceID string, payload []byte, ts time.Time)
}

// DeviceService owns the device lifecycle and is the single entry point for
// device-state-change events, whether they come from the data generator,
// MQTT ingestion or a rule action loopback.
type DeviceService struct {
	devices    store.DeviceStore
	engine     *engine.Engine
	notifier   engine.Notifier
	timeseries TimeSeriesWriter
}

func NewDeviceService(devices store.DeviceStore, eng *engine.Engine, notifier engine.Notifier, timeseries TimeSeriesWriter) *DeviceService {
	return &DeviceService{
		devices:    devices,
		engine:     eng,
		notifier:   notifier,
		timeseries: timeseries,
	}
}

// HandleDeviceEvent applies one device-state-change event: it unwraps a
// {"sensors": {...}} payload, replaces the device's state wholesale,
// broadcasts the update, feeds the rule engine, and writes the raw payload
// to the time-series store for sensor devices. Unknown device ids
// auto-register as physical sensors, which is how organically ingested
// hardware first appears.
func (s *DeviceService) HandleDeviceEvent(deviceID string, state json.RawMessage) {
	finalState := unwrapSensors(state)

	device, ok := s.devices.Get(deviceID)
	if !ok {
		device = &models.Device{
			ID:           deviceID,
			Name:         "Device " + deviceID,
			Type:         models.DeviceTypePhysical,
			Role:         models.DeviceRoleSensor,
			CurrentState: json.RawMessage(`{}`),
		}
		log.Printf("DEVICE: Auto-registering device %s on first event", deviceID)
	}

	device.CurrentState = finalState
	device.Online = true
	s.devices.Save(device)

	if s.notifier != nil {
		s.notifier.NotifyDeviceUpdate(device)
	}

	s.engine.ProcessEvent(device)

	if device.Role == models.DeviceRoleSensor && s.timeseries != nil {
		s.timeseries.WriteSensorPoint(deviceID, state, time.Now())
	}
}

// CreateDevice registers a new device with an empty state.
func (s *DeviceService) CreateDevice(name string, deviceType models.DeviceType, role models.DeviceRole) (*models.Device, error) {
	switch deviceType {
	case models.DeviceTypePhysical, models.DeviceTypeVirtual:
	default:
		return nil, fmt.Errorf("unknown device type %q", deviceType)
	}
	switch role {
	case models.DeviceRoleSensor, models.DeviceRoleActuator:
	default:
		return nil, fmt.Errorf("unknown device role %q", role)
	}

	device := &models.Device{
		ID:           uuid.NewString(),
		Name:         name,
		Type:         deviceType,
		Role:         role,
		CurrentState: json.RawMessage(`{}`),
	}
	s.devices.Save(device)

	if s.notifier != nil {
		s.notifier.NotifyDeviceUpdate(device)
	}
	return device, nil
}

// DeleteDevice removes a device and releases any notifier throttle state
// held for it.
func (s *DeviceService) DeleteDevice(deviceID string) error {
	if !s.devices.Delete(deviceID) {
		return fmt.Errorf("device %s not found", deviceID)
	}
	if forgetter, ok := s.notifier.(interface{ Forget(deviceID string) }); ok {
		forgetter.Forget(deviceID)
	}
	log.Printf("DEVICE: Deleted device %s", deviceID)
	return nil
}

// ListDevices returns all devices.
func (s *DeviceService) ListDevices() []*models.Device {
	return s.devices.List()
}

// unwrapSensors extracts the "sensors" object when the payload carries one;
// otherwise the document is used as-is.
func unwrapSensors(state json.RawMessage) json.RawMessage {
	var wrapper struct {
		Sensors json.RawMessage `json:"sensors"`
	}
	if err := json.Unmarshal(state, &wrapper); err != nil {
		return state
	}
	if len(wrapper.Sensors) > 0 && wrapper.Sensors[0] == '{' {
		return wrapper.Sensors
	}
	return state
}
