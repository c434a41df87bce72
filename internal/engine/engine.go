package engine

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"iot-sim/internal/metrics"
	"iot-sim/internal/models"
	"iot-sim/internal/store"
)

const defaultMaxRecursionDepth = 10

// Aggregator answers windowed aggregate queries for aggregate triggers. The
// second return value is false for an empty window or an unreachable store,
// which the engine treats as "condition not met".
type Aggregator interface {
	QueryAggregate(deviceID, field, rng string, fn models.AggregateFunction) (float64, bool)
}

// Notifier receives updated device projections for broadcast.
type Notifier interface {
	NotifyDeviceUpdate(device *models.Device)
}

// CommandPublisher dispatches outbound commands to target devices. Dispatch
// is asynchronous; QueueCommand must not block the cascade.
type CommandPublisher interface {
	QueueCommand(deviceID string, payload []byte)
}

// Config holds the rule engine's collaborators. Aggregator, Notifier and
// Commands may be nil: the engine stays functional for state-path rules when
// the time-series store or the bus is unavailable.
type Config struct {
	Devices           store.DeviceStore
	Rules             store.RuleStore
	Aggregator        Aggregator
	Notifier          Notifier
	Commands          CommandPublisher
	MaxRecursionDepth int
	Metrics           *metrics.Metrics
}

// Engine evaluates rules against device-state-change events.
//
// Rules are edge-triggered: an action fires only on the transition from
// condition-false to condition-true, tracked by the rule's persisted Active
// flag. Each fired action overwrites the target device's state and feeds the
// resulting event back into the engine depth-first, bounded by the recursion
// depth so cyclic rule graphs terminate.
type Engine struct {
	devices    store.DeviceStore
	rules      store.RuleStore
	aggregator Aggregator
	notifier   Notifier
	commands   CommandPublisher
	maxDepth   int
	metrics    *metrics.Metrics
}

// New creates an Engine.
func New(cfg Config) *Engine {
	maxDepth := cfg.MaxRecursionDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxRecursionDepth
	}
	return &Engine{
		devices:    cfg.Devices,
		rules:      cfg.Rules,
		aggregator: cfg.Aggregator,
		notifier:   cfg.Notifier,
		commands:   cfg.Commands,
		maxDepth:   maxDepth,
		metrics:    cfg.Metrics,
	}
}

// ProcessEvent starts the rule cascade for one root device event. The whole
// cascade runs synchronously in the caller's goroutine; independent root
// events may be processed concurrently with each other.
func (e *Engine) ProcessEvent(device *models.Device) {
	e.metrics.IncEventsProcessed()
	e.evaluate(device, 0)
}

func (e *Engine) evaluate(device *models.Device, depth int) {
	if depth >= e.maxDepth {
		log.Printf("ENGINE: Max recursion depth (%d) reached for device %s, halting chain", e.maxDepth, device.ID)
		e.metrics.IncDepthLimitReached()
		return
	}

	for _, rule := range e.rules.ForTriggerDevice(device.ID) {
		conditionMet := e.isTriggered(rule, device)

		switch {
		case conditionMet && !rule.Active:
			log.Printf("ENGINE: Rule %q activated, executing action", rule.Name)
			e.executeAction(rule, depth)
			rule.Active = true
			e.rules.Save(rule)
		case !conditionMet && rule.Active:
			log.Printf("ENGINE: Rule %q deactivated (reset)", rule.Name)
			rule.Active = false
			e.rules.Save(rule)
			e.metrics.IncRuleResets()
		}
	}
}

// isTriggered resolves a rule's trigger to a boolean. Malformed configs,
// missing paths and empty aggregates all evaluate to false; a broken rule
// never aborts its siblings.
func (e *Engine) isTriggered(rule *models.Rule, device *models.Device) bool {
	var trigger models.RuleTrigger
	if err := json.Unmarshal(rule.TriggerConfig, &trigger); err != nil {
		log.Printf("ENGINE: Rule %s has malformed trigger config: %v", rule.ID, err)
		return false
	}
	if trigger.Aggregate != "" {
		return e.checkAggregateCondition(trigger, device)
	}
	return e.checkStateCondition(trigger, device)
}

func (e *Engine) checkStateCondition(trigger models.RuleTrigger, device *models.Device) bool {
	value, ok := resolvePath(device.CurrentState, trigger.Path)
	if !ok {
		return false
	}
	return compareValues(value, trigger)
}

func (e *Engine) checkAggregateCondition(trigger models.RuleTrigger, device *models.Device) bool {
	if e.aggregator == nil {
		return false
	}
	value, ok := e.aggregator.QueryAggregate(device.ID, trigger.Field, trigger.Range, trigger.Aggregate)
	if !ok {
		return false
	}
	return compareValues(value, trigger)
}

// compareValues parses both sides as floats and applies the operator. When
// either side is not numeric, only EQUALS falls back to exact string
// equality; every other operator evaluates to false.
func compareValues(actual any, trigger models.RuleTrigger) bool {
	actualStr := fmt.Sprint(actual)
	a, errA := strconv.ParseFloat(actualStr, 64)
	b, errB := strconv.ParseFloat(trigger.Value, 64)
	if errA != nil || errB != nil {
		return trigger.Operator == models.OperatorEquals && actualStr == trigger.Value
	}
	return trigger.Operator.Apply(a, b)
}

// executeAction overwrites the target device's state, persists and
// broadcasts it, queues the outbound command, and chains the resulting
// event at depth+1. A missing target device is a logged no-op.
func (e *Engine) executeAction(rule *models.Rule, depth int) {
	var action models.RuleAction
	if err := json.Unmarshal(rule.ActionConfig, &action); err != nil {
		log.Printf("ENGINE: Rule %s has malformed action config: %v", rule.ID, err)
		return
	}

	target, ok := e.devices.Get(action.DeviceID)
	if !ok {
		log.Printf("ENGINE: Rule %s targets unknown device %s, skipping action", rule.ID, action.DeviceID)
		return
	}

	target.CurrentState = append(json.RawMessage(nil), action.NewState...)
	e.devices.Save(target)
	e.metrics.IncRulesTriggered()
	e.metrics.ObserveCascadeDepth(depth)

	if e.notifier != nil {
		e.notifier.NotifyDeviceUpdate(target)
	}
	if e.commands != nil {
		e.commands.QueueCommand(target.ID, append([]byte(nil), action.NewState...))
	}

	e.evaluate(target, depth+1)
}
