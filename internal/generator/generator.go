package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"iot-sim/internal/metrics"
	"iot-sim/internal/models"
	"iot-sim/internal/store"
)

const defaultTickInterval = 500 * time.Millisecond

// EventSink receives the device-state-change events the generator emits.
type EventSink interface {
	HandleDeviceEvent(deviceID string, state json.RawMessage)
}

// Config holds the data generator's collaborators and tuning.
type Config struct {
	Devices      store.DeviceStore
	Sink         EventSink
	TickInterval time.Duration
	Metrics      *metrics.Metrics
}

// Generator produces synthetic sensor readings for devices with an active
// simulation. The tick period is fixed and independent of any device's
// configured interval; per-device intervals are enforced by a last-update
// timestamp map that is pruned to the active set each tick.
type Generator struct {
	devices     store.DeviceStore
	sink        EventSink
	tick        time.Duration
	metrics     *metrics.Metrics
	lastUpdates sync.Map // device id -> unix ms of the last emitted reading
}

// New creates a Generator.
func New(cfg Config) *Generator {
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = defaultTickInterval
	}
	return &Generator{
		devices: cfg.Devices,
		sink:    cfg.Sink,
		tick:    tick,
		metrics: cfg.Metrics,
	}
}

// Run drives the generation loop until ctx is cancelled.
func (g *Generator) Run(ctx context.Context) {
	log.Printf("GENERATOR: Starting, tick interval %s", g.tick)
	ticker := time.NewTicker(g.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("GENERATOR: Shutting down")
			return
		case <-ticker.C:
			g.generateTick(time.Now().UnixMilli())
		}
	}
}

// generateTick processes every device with an active simulation, one
// goroutine per device. A failing device is logged and skipped; it never
// prevents the other devices in the same tick from being processed.
func (g *Generator) generateTick(nowMs int64) {
	active := g.devices.ActiveSimulations()
	g.pruneStale(active)
	if len(active) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, device := range active {
		wg.Add(1)
		go func(d *models.Device) {
			defer wg.Done()
			if err := g.processDeviceTick(d, nowMs); err != nil {
				log.Printf("GENERATOR: Device %s: %v", d.ID, err)
			}
		}(device)
	}
	wg.Wait()
}

func (g *Generator) processDeviceTick(device *models.Device, nowMs int64) error {
	var cfg models.SimulationConfig
	if err := json.Unmarshal(device.SimulationConfig, &cfg); err != nil {
		return fmt.Errorf("invalid simulation config: %w", err)
	}

	var lastMs int64
	if last, ok := g.lastUpdates.Load(device.ID); ok {
		lastMs = last.(int64)
	}
	if nowMs-lastMs < int64(cfg.IntervalMs) {
		return nil
	}
	g.lastUpdates.Store(device.ID, nowMs)

	state, err := g.composeReading(cfg)
	if err != nil {
		return err
	}

	if g.applyNetworkProfile(device.ID, state, cfg.NetworkProfile) {
		return nil
	}

	g.metrics.IncReadingsGenerated()
	g.sink.HandleDeviceEvent(device.ID, state)
	return nil
}

// composeReading computes one value per configured field and assembles the
// {"sensors": {...}} document. Values carry 2 decimal places.
func (g *Generator) composeReading(cfg models.SimulationConfig) (json.RawMessage, error) {
	sensors := make(map[string]float64, len(cfg.Fields))
	for name, field := range cfg.Fields {
		strategy, ok := StrategyFor(field.Pattern)
		if !ok {
			return nil, fmt.Errorf("unknown simulation pattern %q for field %q", field.Pattern, name)
		}
		sensors[name] = math.Round(strategy(field.Parameters)*100) / 100
	}
	return json.Marshal(map[string]map[string]float64{"sensors": sensors})
}

// applyNetworkProfile emulates network imperfections for one reading.
// Packet loss is evaluated first; latency then defers emission through a
// timer so the tick loop never blocks. Returns true when the reading was
// consumed here.
func (g *Generator) applyNetworkProfile(deviceID string, state json.RawMessage, profile models.NetworkProfile) bool {
	if profile.PacketLossPercent > 0 && rand.Intn(100) < profile.PacketLossPercent {
		g.metrics.IncPacketsDropped()
		return true
	}

	if profile.LatencyMs > 0 {
		g.metrics.IncDelayedEmissions()
		time.AfterFunc(time.Duration(profile.LatencyMs)*time.Millisecond, func() {
			g.metrics.IncReadingsGenerated()
			g.sink.HandleDeviceEvent(deviceID, state)
		})
		return true
	}

	return false
}

// pruneStale drops interval timestamps for devices that left the active set
// so the map does not grow forever as devices are created and removed.
func (g *Generator) pruneStale(active []*models.Device) {
	ids := make(map[string]struct{}, len(active))
	for _, device := range active {
		ids[device.ID] = struct{}{}
	}
	g.lastUpdates.Range(func(key, _ any) bool {
		if _, ok := ids[key.(string)]; !ok {
			g.lastUpdates.Delete(key)
		}
		return true
	})
}
