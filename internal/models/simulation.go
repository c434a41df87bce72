package models

import (
	"errors"
	"fmt"
)

// SimulationPattern names a waveform strategy.
type SimulationPattern string

const (
	PatternSine   SimulationPattern = "SINE"
	PatternRandom SimulationPattern = "RANDOM"
)

// SimulationConfig describes how synthetic readings are produced for one
// device: how often, which fields, and with what network impairments.
type SimulationConfig struct {
	IntervalMs     int                    `json:"intervalMs"`
	Fields         map[string]FieldConfig `json:"fields"`
	NetworkProfile NetworkProfile         `json:"networkProfile"`
}

// FieldConfig configures one generated sensor field.
type FieldConfig struct {
	Pattern    SimulationPattern  `json:"pattern"`
	Parameters map[string]float64 `json:"parameters"`
}

// NetworkProfile emulates network imperfections for generated readings only.
type NetworkProfile struct {
	LatencyMs         int `json:"latencyMs"`
	PacketLossPercent int `json:"packetLossPercent"`
}

// Validate rejects malformed simulation configs at configuration time.
// Configs that pass here may still fail during generation; those failures
// are isolated per device, not propagated.
func (c SimulationConfig) Validate() error {
	if c.IntervalMs < 100 {
		return fmt.Errorf("intervalMs must be at least 100, got %d", c.IntervalMs)
	}
	if len(c.Fields) == 0 {
		return errors.New("at least one simulation field must be configured")
	}
	for name, field := range c.Fields {
		if err := field.Validate(); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
	}
	return c.NetworkProfile.Validate()
}

// Validate checks the per-pattern parameter contract. Unknown patterns are a
// hard rejection.
func (f FieldConfig) Validate() error {
	switch f.Pattern {
	case PatternSine:
		for _, p := range []string{"amplitude", "period", "offset"} {
			if _, ok := f.Parameters[p]; !ok {
				return fmt.Errorf("SINE requires parameter %q", p)
			}
		}
		if f.Parameters["period"] <= 0 {
			return errors.New("SINE period must be positive")
		}
	case PatternRandom:
		min, okMin := f.Parameters["min"]
		max, okMax := f.Parameters["max"]
		if !okMin || !okMax {
			return errors.New("RANDOM requires parameters min and max")
		}
		if min >= max {
			return fmt.Errorf("RANDOM requires min < max, got min=%v max=%v", min, max)
		}
	default:
		return fmt.Errorf("unknown simulation pattern %q", f.Pattern)
	}
	return nil
}

// Validate checks that the profile values are within range.
func (p NetworkProfile) Validate() error {
	if p.LatencyMs < 0 {
		return fmt.Errorf("latencyMs must be non-negative, got %d", p.LatencyMs)
	}
	if p.PacketLossPercent < 0 || p.PacketLossPercent > 100 {
		return fmt.Errorf("packetLossPercent must be in [0,100], got %d", p.PacketLossPercent)
	}
	return nil
}
