package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"iot-sim/internal/metrics"
	"iot-sim/internal/models"
)

// TimeSeriesDB is the client for the columnar time-series store. Aggregate
// verbs are selected from a closed enum and every deviceId/field/timestamp
// value is passed as a bound parameter, never interpolated into query text:
// device ids and rule fields originate from externally-controlled input.
//
// Failure semantics at this boundary: read errors produce an empty result,
// write errors are logged and swallowed. The rule engine must stay fully
// functional for state-path rules when the store is unavailable.
type TimeSeriesDB struct {
	conn    driver.Conn
	metrics *metrics.Metrics
}

// aggregateVerbs maps the aggregate enum to ClickHouse aggregate functions.
// Arbitrary function names from rule configs never reach the query text.
var aggregateVerbs = map[models.AggregateFunction]string{
	models.AggregateMean:  "avg",
	models.AggregateMax:   "max",
	models.AggregateMin:   "min",
	models.AggregateSum:   "sum",
	models.AggregateCount: "count",
}

// NewTimeSeriesDB connects to ClickHouse and initializes the schema.
func NewTimeSeriesDB(addr, database, username, password string) (*TimeSeriesDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.Printf("Connected to ClickHouse at %s", addr)

	db := &TimeSeriesDB{conn: conn}
	if err := db.InitSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

// SetMetrics attaches optional instrumentation.
func (db *TimeSeriesDB) SetMetrics(m *metrics.Metrics) {
	db.metrics = m
}

// InitSchema creates the necessary tables if they don't exist
func (db *TimeSeriesDB) InitSchema() error {
	ctx := context.Background()
	for _, tableSQL := range AllTables() {
		if err := db.conn.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// QueryAggregate computes one windowed aggregate over a device's field. The
// second return value is false when the window holds no data, the aggregate
// is unknown, or the store is unreachable.
func (db *TimeSeriesDB) QueryAggregate(deviceID, field, rng string, fn models.AggregateFunction) (float64, bool) {
	query, ok := buildAggregateQuery(fn)
	if !ok {
		log.Printf("TIMESERIES: Unknown aggregate function %q", fn)
		return 0, false
	}

	start, err := rangeStart(rng, time.Now())
	if err != nil {
		log.Printf("TIMESERIES: Invalid range %q: %v", rng, err)
		return 0, false
	}

	var value float64
	var count uint64
	row := db.conn.QueryRow(context.Background(), query, deviceID, field, start)
	if err := row.Scan(&value, &count); err != nil {
		log.Printf("TIMESERIES: Aggregate query failed: %v", err)
		db.metrics.IncTimeSeriesErrors()
		return 0, false
	}
	if count == 0 {
		return 0, false
	}
	return value, true
}

// SensorRecord is one stored sensor value.
type SensorRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Field     string    `json:"field"`
	Value     float64   `json:"value"`
}

// ReadRange returns a device's sensor records between start and stop, oldest
// first. Start accepts a duration looking back from now ("1h", "-15m") or an
// RFC 3339 instant; an empty stop means now. Errors yield an empty result.
func (db *TimeSeriesDB) ReadRange(deviceID, start, stop string) []SensorRecord {
	startTime, err := rangeStart(start, time.Now())
	if err != nil {
		log.Printf("TIMESERIES: Invalid range start %q: %v", start, err)
		return nil
	}
	stopTime := time.Now()
	if stop != "" {
		stopTime, err = rangeStart(stop, time.Now())
		if err != nil {
			log.Printf("TIMESERIES: Invalid range stop %q: %v", stop, err)
			return nil
		}
	}

	query := `
		SELECT timestamp, field, value
		FROM sensor_readings
		WHERE device_id = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp
	`

	rows, err := db.conn.Query(context.Background(), query, deviceID, startTime, stopTime)
	if err != nil {
		log.Printf("TIMESERIES: Range query failed: %v", err)
		db.metrics.IncTimeSeriesErrors()
		return nil
	}
	defer rows.Close()

	var records []SensorRecord
	for rows.Next() {
		var rec SensorRecord
		if err := rows.Scan(&rec.Timestamp, &rec.Field, &rec.Value); err != nil {
			log.Printf("TIMESERIES: Scan failed: %v", err)
			db.metrics.IncTimeSeriesErrors()
			return nil
		}
		records = append(records, rec)
	}
	return records
}

// WriteSensorPoint writes the numeric leaf fields of payload as one point.
// A nested "sensors" object is unwrapped first; non-numeric fields are
// dropped; zero numeric fields means no write. Errors are logged and
// swallowed so time-series unavailability never interrupts the engine.
func (db *TimeSeriesDB) WriteSensorPoint(deviceID string, payload []byte, ts time.Time) {
	fields := NumericFields(payload)
	if len(fields) == 0 {
		return
	}

	ctx := context.Background()
	batch, err := db.conn.PrepareBatch(ctx, "INSERT INTO sensor_readings (timestamp, device_id, field, value)")
	if err != nil {
		log.Printf("TIMESERIES: Prepare write failed for device %s: %v", deviceID, err)
		db.metrics.IncTimeSeriesErrors()
		return
	}
	for name, value := range fields {
		if err := batch.Append(ts, deviceID, name, value); err != nil {
			log.Printf("TIMESERIES: Append failed for device %s field %s: %v", deviceID, name, err)
			db.metrics.IncTimeSeriesErrors()
			return
		}
	}
	if err := batch.Send(); err != nil {
		log.Printf("TIMESERIES: Write failed for device %s: %v", deviceID, err)
		db.metrics.IncTimeSeriesErrors()
	}
}

// Close closes the underlying connection.
func (db *TimeSeriesDB) Close() error {
	return db.conn.Close()
}

// buildAggregateQuery returns the parameterized aggregate query for fn. The
// query text depends only on the closed verb table; the companion count lets
// the caller distinguish an empty window from a zero-valued aggregate.
func buildAggregateQuery(fn models.AggregateFunction) (string, bool) {
	verb, ok := aggregateVerbs[fn]
	if !ok {
		return "", false
	}
	return fmt.Sprintf(`
		SELECT toFloat64(%s(value)), count(value)
		FROM sensor_readings
		WHERE device_id = ? AND field = ? AND timestamp >= ?
	`, verb), true
}

// NormalizeRange prefixes a bare duration with "-" to mean "look back from
// now". Already-signed durations and values carrying an explicit instant
// pass through unchanged.
func NormalizeRange(rng string) string {
	if rng == "" || strings.HasPrefix(rng, "-") || strings.Contains(rng, "T") {
		return rng
	}
	return "-" + rng
}

// rangeStart resolves a range expression to an absolute start time: a
// duration relative to now after sign normalization, or an RFC 3339 instant.
func rangeStart(rng string, now time.Time) (time.Time, error) {
	normalized := NormalizeRange(rng)
	if dur, err := parseLookback(normalized); err == nil {
		return now.Add(dur), nil
	}
	instant, err := time.Parse(time.RFC3339, normalized)
	if err != nil {
		return time.Time{}, fmt.Errorf("range %q is neither a duration nor an instant", rng)
	}
	return instant, nil
}

// parseLookback parses a range duration, accepting the day and week units
// range expressions carry ("7d", "2w") on top of the standard ones.
func parseLookback(s string) (time.Duration, error) {
	if dur, err := time.ParseDuration(s); err == nil {
		return dur, nil
	}

	rest := s
	negative := strings.HasPrefix(rest, "-")
	if negative {
		rest = rest[1:]
	}

	var unit time.Duration
	switch {
	case strings.HasSuffix(rest, "d"):
		unit = 24 * time.Hour
		rest = strings.TrimSuffix(rest, "d")
	case strings.HasSuffix(rest, "w"):
		unit = 7 * 24 * time.Hour
		rest = strings.TrimSuffix(rest, "w")
	default:
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	n, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	dur := time.Duration(n * float64(unit))
	if negative {
		dur = -dur
	}
	return dur, nil
}

// NumericFields extracts the numeric leaves the write path persists. If the
// document carries a "sensors" object, fields are taken from inside it.
func NumericFields(payload []byte) map[string]float64 {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		log.Printf("TIMESERIES: Malformed payload: %v", err)
		return nil
	}
	if sensors, ok := doc["sensors"].(map[string]any); ok {
		doc = sensors
	}

	fields := make(map[string]float64)
	for name, value := range doc {
		if num, ok := value.(float64); ok {
			fields[name] = num
		}
	}
	return fields
}
