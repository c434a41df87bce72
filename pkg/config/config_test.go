package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTBroker)
	assert.Equal(t, "iot/devices/+/data", cfg.MQTTDataTopic)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 100, cfg.GeneratorTickMs)
	assert.Equal(t, 10, cfg.MaxRecursionDepth)
	assert.Equal(t, 500, cfg.NotifyThrottleMs)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("GENERATOR_TICK_MS", "250")
	t.Setenv("MAX_RECURSION_DEPTH", "not-a-number")

	cfg := Load()

	assert.Equal(t, "tcp://broker:1883", cfg.MQTTBroker)
	assert.Equal(t, 250, cfg.GeneratorTickMs)
	assert.Equal(t, 10, cfg.MaxRecursionDepth, "unparsable values fall back to the default")
}
