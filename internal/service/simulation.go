package service

import (
	"encoding/json"
	"errors"
	"fmt"

	"iot-sim/internal/models"
	"iot-sim/internal/store"
)

// SimulationService manages per-device simulation configuration.
//
// Validation happens here, at configuration time: a config that is rejected
// never becomes a device's simulationConfig. The generator's own skip-on-
// error behavior is defense in depth for configs accepted before a contract
// change, not a substitute for this gate.
type SimulationService struct {
	devices store.DeviceStore
}

func NewSimulationService(devices store.DeviceStore) *SimulationService {
	return &SimulationService{devices: devices}
}

// ConfigureSimulation validates and installs a simulation config.
func (s *SimulationService) ConfigureSimulation(deviceID string, raw json.RawMessage) error {
	device, ok := s.devices.Get(deviceID)
	if !ok {
		return fmt.Errorf("device %s not found", deviceID)
	}

	var cfg models.SimulationConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("invalid simulation config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid simulation config: %w", err)
	}

	device.SimulationConfig = raw
	s.devices.Save(device)
	return nil
}

// StartSimulation opens the simulation gate for a virtual device that
// carries a valid config.
func (s *SimulationService) StartSimulation(deviceID string) error {
	device, ok := s.devices.Get(deviceID)
	if !ok {
		return fmt.Errorf("device %s not found", deviceID)
	}
	if device.Type != models.DeviceTypeVirtual {
		return errors.New("only virtual devices can be simulated")
	}
	if len(device.SimulationConfig) == 0 {
		return errors.New("device has no simulation config")
	}

	device.SimulationActive = true
	s.devices.Save(device)
	return nil
}

// StopSimulation closes the simulation gate.
func (s *SimulationService) StopSimulation(deviceID string) error {
	device, ok := s.devices.Get(deviceID)
	if !ok {
		return fmt.Errorf("device %s not found", deviceID)
	}
	device.SimulationActive = false
	s.devices.Save(device)
	return nil
}
