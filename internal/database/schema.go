package database

// SQL schemas for all ClickHouse tables

const (
	// SensorReadingsTableSQL creates the sensor_readings table. One row per
	// numeric field per reading, so field names stay data rather than
	// schema and every query value can be bound as a parameter.
	SensorReadingsTableSQL = `
		CREATE TABLE IF NOT EXISTS sensor_readings (
			timestamp DateTime64(3),
			device_id String,
			field String,
			value Float64
		) ENGINE = MergeTree()
		ORDER BY (device_id, field, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`
)

// AllTables returns all table creation SQL statements
func AllTables() []string {
	return []string{
		SensorReadingsTableSQL,
	}
}
