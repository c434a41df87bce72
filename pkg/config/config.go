package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// MQTT Configuration
	MQTTBroker       string
	MQTTClientID     string
	MQTTUsername     string
	MQTTPassword     string
	MQTTDataTopic    string
	MQTTCommandTopic string

	// ClickHouse Configuration
	ClickHouseAddr string
	ClickHouseDB   string
	ClickHouseUser string
	ClickHousePass string

	// HTTP Configuration
	HTTPAddr string

	// Simulation Configuration
	GeneratorTickMs int

	// Rule Engine Configuration
	MaxRecursionDepth int

	// WebSocket Configuration
	NotifyThrottleMs int
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		// MQTT Configuration
		MQTTBroker:       getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID:     getEnv("MQTT_CLIENT_ID", "iot-sim-backend"),
		MQTTUsername:     getEnv("MQTT_USERNAME", ""),
		MQTTPassword:     getEnv("MQTT_PASSWORD", ""),
		MQTTDataTopic:    getEnv("MQTT_TOPIC_DATA", "iot/devices/+/data"),
		MQTTCommandTopic: getEnv("MQTT_TOPIC_COMMAND", "iot/devices/{device_id}/cmd"),

		// ClickHouse Configuration
		ClickHouseAddr: getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDB:   getEnv("CLICKHOUSE_DB", "iot"),
		ClickHouseUser: getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePass: getEnv("CLICKHOUSE_PASS", ""),

		// HTTP Configuration
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		// Simulation Configuration
		GeneratorTickMs: getEnvInt("GENERATOR_TICK_MS", 100),

		// Rule Engine Configuration
		MaxRecursionDepth: getEnvInt("MAX_RECURSION_DEPTH", 10),

		// WebSocket Configuration
		NotifyThrottleMs: getEnvInt("NOTIFY_THROTTLE_MS", 500),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as int, using default: %v", key, err)
		return defaultValue
	}
	return intValue
}
