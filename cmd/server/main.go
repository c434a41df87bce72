package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"iot-sim/internal/api"
	"iot-sim/internal/database"
	"iot-sim/internal/engine"
	"iot-sim/internal/generator"
	"iot-sim/internal/metrics"
	"iot-sim/internal/mqtt"
	"iot-sim/internal/service"
	"iot-sim/internal/store"
	"iot-sim/internal/websocket"
	"iot-sim/pkg/config"
)

func main() {
	log.Println("Starting IoT Simulation Service...")

	// Load configuration
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(prometheus.DefaultRegisterer)

	// Initialize ClickHouse. The service stays up without it: aggregate
	// rules report "not met" and history endpoints return 503.
	var tsdb *database.TimeSeriesDB
	db, err := database.NewTimeSeriesDB(
		cfg.ClickHouseAddr,
		cfg.ClickHouseDB,
		cfg.ClickHouseUser,
		cfg.ClickHousePass,
	)
	if err != nil {
		log.Printf("ClickHouse unavailable, continuing without time-series store: %v", err)
	} else {
		db.SetMetrics(m)
		tsdb = db
		defer db.Close()
	}

	devices := store.NewMemoryDeviceStore()
	rules := store.NewMemoryRuleStore()

	// WebSocket hub with the throttled notifier in front of it
	hub := websocket.NewHub()
	go hub.Run(ctx)
	notifier := websocket.NewNotifier(hub, time.Duration(cfg.NotifyThrottleMs)*time.Millisecond)

	// MQTT is optional in the same way ClickHouse is: without a broker the
	// simulator still runs, physical ingestion and command publishing are off.
	var bus *mqtt.Client
	mqttClient, err := mqtt.NewClient(mqtt.ClientConfig{
		Broker:       cfg.MQTTBroker,
		ClientID:     cfg.MQTTClientID,
		Username:     cfg.MQTTUsername,
		Password:     cfg.MQTTPassword,
		DataTopic:    cfg.MQTTDataTopic,
		CommandTopic: cfg.MQTTCommandTopic,
	})
	if err != nil {
		log.Printf("MQTT unavailable, continuing without message bus: %v", err)
	} else {
		bus = mqttClient
		go bus.Start(ctx)
		defer bus.Close()
	}

	// Rule engine with its collaborators. The command router keeps
	// virtual-device commands in-process; the engine already applied their
	// state, so only physical devices need a bus round-trip.
	var busPublisher engine.CommandPublisher
	if bus != nil {
		busPublisher = bus
	}
	commands := service.NewCommandRouter(devices, busPublisher)

	var aggregator engine.Aggregator
	if tsdb != nil {
		aggregator = tsdb
	}
	eng := engine.New(engine.Config{
		Devices:           devices,
		Rules:             rules,
		Aggregator:        aggregator,
		Notifier:          notifier,
		Commands:          commands,
		MaxRecursionDepth: cfg.MaxRecursionDepth,
		Metrics:           m,
	})

	var timeseries service.TimeSeriesWriter
	if tsdb != nil {
		timeseries = tsdb
	}
	deviceService := service.NewDeviceService(devices, eng, notifier, timeseries)
	ruleService := service.NewRuleService(rules)
	ruleService.MigrateRules()
	simulationService := service.NewSimulationService(devices)

	if bus != nil {
		bus.SetIngestHandler(deviceService.HandleDeviceEvent)
		if err := bus.SubscribeData(); err != nil {
			log.Printf("Failed to subscribe to data topic: %v", err)
		}
	}

	// Data generator feeds synthetic readings through the same event path
	// as MQTT ingestion.
	gen := generator.New(generator.Config{
		Devices:      devices,
		Sink:         deviceService,
		TickInterval: time.Duration(cfg.GeneratorTickMs) * time.Millisecond,
		Metrics:      m,
	})
	go gen.Run(ctx)

	var readings api.ReadingsReader
	if tsdb != nil {
		readings = tsdb
	}
	handler := api.NewAPIHandler(deviceService, ruleService, simulationService, readings, hub)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.SetupRouter(handler),
	}
	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	log.Println("Shutdown complete")
}
