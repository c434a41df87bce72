package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"iot-sim/internal/database"
	"iot-sim/internal/models"
	"iot-sim/internal/service"
	"iot-sim/internal/websocket"
)

// ReadingsReader serves historical sensor readings. Nil when the
// time-series store is unavailable.
type ReadingsReader interface {
	ReadRange(deviceID, start, stop string) []database.SensorRecord
}

type APIHandler struct {
	devices     *service.DeviceService
	rules       *service.RuleService
	simulations *service.SimulationService
	readings    ReadingsReader
	hub         *websocket.Hub
}

func NewAPIHandler(devices *service.DeviceService, rules *service.RuleService, simulations *service.SimulationService, readings ReadingsReader, hub *websocket.Hub) *APIHandler {
	return &APIHandler{
		devices:     devices,
		rules:       rules,
		simulations: simulations,
		readings:    readings,
		hub:         hub,
	}
}

func (h *APIHandler) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.devices.ListDevices())
}

func (h *APIHandler) HandleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string            `json:"name"`
		Type models.DeviceType `json:"type"`
		Role models.DeviceRole `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request: cannot parse JSON", http.StatusBadRequest)
		return
	}

	device, err := h.devices.CreateDevice(req.Name, req.Type, req.Role)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, device)
}

func (h *APIHandler) HandleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := h.devices.DeleteDevice(chi.URLParam(r, "deviceID")); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeviceEvent ingests a device-state-change event over HTTP, the same
// path MQTT messages take.
func (h *APIHandler) HandleDeviceEvent(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if !json.Valid(body) {
		http.Error(w, "Bad Request: cannot parse JSON", http.StatusBadRequest)
		return
	}

	h.devices.HandleDeviceEvent(deviceID, body)
	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

func (h *APIHandler) HandleDeviceReadings(w http.ResponseWriter, r *http.Request) {
	if h.readings == nil {
		http.Error(w, "time-series store unavailable", http.StatusServiceUnavailable)
		return
	}

	deviceID := chi.URLParam(r, "deviceID")
	start := r.URL.Query().Get("start")
	if start == "" {
		start = "-1h"
	}
	stop := r.URL.Query().Get("stop")

	records := h.readings.ReadRange(deviceID, start, stop)
	writeJSON(w, http.StatusOK, records)
}

func (h *APIHandler) HandleListRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.rules.ListRules())
}

func (h *APIHandler) HandleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string          `json:"name"`
		TriggerConfig json.RawMessage `json:"triggerConfig"`
		ActionConfig  json.RawMessage `json:"actionConfig"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request: cannot parse JSON", http.StatusBadRequest)
		return
	}

	rule, err := h.rules.CreateRule(req.Name, req.TriggerConfig, req.ActionConfig)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (h *APIHandler) HandleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.rules.DeleteRule(chi.URLParam(r, "ruleID")); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) HandleConfigureSimulation(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := h.simulations.ConfigureSimulation(deviceID, body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "configured"})
}

func (h *APIHandler) HandleStartSimulation(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	if err := h.simulations.StartSimulation(deviceID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	log.Printf("API: Simulation started for device %s", deviceID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (h *APIHandler) HandleStopSimulation(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	if err := h.simulations.StopSimulation(deviceID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	log.Printf("API: Simulation stopped for device %s", deviceID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (h *APIHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWS(h.hub, w, r)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("API: Failed to encode response: %v", err)
	}
}
