package models

import "encoding/json"

// RuleOperator is the comparison applied between a trigger's observed value
// and its configured value.
type RuleOperator string

const (
	OperatorEquals      RuleOperator = "EQUALS"
	OperatorNotEquals   RuleOperator = "NOT_EQUALS"
	OperatorGreaterThan RuleOperator = "GREATER_THAN"
	OperatorLessThan    RuleOperator = "LESS_THAN"
)

// Apply evaluates the operator for two numeric operands. Unknown operators
// evaluate to false.
func (op RuleOperator) Apply(actual, expected float64) bool {
	switch op {
	case OperatorEquals:
		return actual == expected
	case OperatorNotEquals:
		return actual != expected
	case OperatorGreaterThan:
		return actual > expected
	case OperatorLessThan:
		return actual < expected
	default:
		return false
	}
}

// AggregateFunction selects a windowed aggregate over historical sensor data.
type AggregateFunction string

const (
	AggregateMean  AggregateFunction = "MEAN"
	AggregateMax   AggregateFunction = "MAX"
	AggregateMin   AggregateFunction = "MIN"
	AggregateSum   AggregateFunction = "SUM"
	AggregateCount AggregateFunction = "COUNT"
)

// Rule binds a trigger condition on one device to an action on another.
// Active is the last-observed truth value of the trigger condition; it is
// mutated only by the rule engine and exists purely for edge detection.
type Rule struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	TriggerConfig   json.RawMessage `json:"triggerConfig"`
	ActionConfig    json.RawMessage `json:"actionConfig"`
	TriggerDeviceID string          `json:"triggerDeviceId"`
	Active          bool            `json:"active"`
}

// Clone returns a deep copy, mirroring Device.Clone for the rule store.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	clone := *r
	clone.TriggerConfig = append(json.RawMessage(nil), r.TriggerConfig...)
	clone.ActionConfig = append(json.RawMessage(nil), r.ActionConfig...)
	return &clone
}

// RuleTrigger is the parsed form of a rule's trigger config. An empty
// Aggregate means a state trigger (Path against the device's current state);
// otherwise Field and Range describe a windowed aggregate query.
type RuleTrigger struct {
	DeviceID  string            `json:"deviceId"`
	Path      string            `json:"path"`
	Aggregate AggregateFunction `json:"aggregate"`
	Field     string            `json:"field"`
	Range     string            `json:"range"`
	Operator  RuleOperator      `json:"operator"`
	Value     string            `json:"value"`
}

// RuleAction is the parsed form of a rule's action config: a full-state
// overwrite of the target device.
type RuleAction struct {
	DeviceID string          `json:"deviceId"`
	NewState json.RawMessage `json:"newState"`
}
