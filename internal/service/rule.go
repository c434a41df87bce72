package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"iot-sim/internal/models"
	"iot-sim/internal/store"
)

// RuleService manages the rule lifecycle. The engine only ever flips the
// Active flag; everything else is written here.
type RuleService struct {
	rules store.RuleStore
}

func NewRuleService(rules store.RuleStore) *RuleService {
	return &RuleService{rules: rules}
}

// CreateRule validates the trigger config and derives TriggerDeviceID from
// it at write time, so the index can never drift from the config.
func (s *RuleService) CreateRule(name string, triggerConfig, actionConfig json.RawMessage) (*models.Rule, error) {
	var trigger models.RuleTrigger
	if err := json.Unmarshal(triggerConfig, &trigger); err != nil {
		return nil, fmt.Errorf("invalid trigger config: %w", err)
	}
	if trigger.DeviceID == "" {
		return nil, errors.New("trigger deviceId is required")
	}
	if !json.Valid(actionConfig) {
		return nil, errors.New("action config is not valid JSON")
	}

	rule := &models.Rule{
		ID:              uuid.NewString(),
		Name:            name,
		TriggerConfig:   triggerConfig,
		ActionConfig:    actionConfig,
		TriggerDeviceID: trigger.DeviceID,
	}
	s.rules.Save(rule)
	return rule, nil
}

// DeleteRule removes a rule.
func (s *RuleService) DeleteRule(ruleID string) error {
	if !s.rules.Delete(ruleID) {
		return fmt.Errorf("rule %s not found", ruleID)
	}
	log.Printf("RULE: Deleted rule %s", ruleID)
	return nil
}

// ListRules returns all rules.
func (s *RuleService) ListRules() []*models.Rule {
	return s.rules.List()
}

// MigrateRules backfills TriggerDeviceID on rules written before the
// denormalized index existed. Rules with unparsable configs are left alone.
func (s *RuleService) MigrateRules() {
	migrated := 0
	for _, rule := range s.rules.List() {
		if rule.TriggerDeviceID != "" || len(rule.TriggerConfig) == 0 {
			continue
		}
		var trigger models.RuleTrigger
		if err := json.Unmarshal(rule.TriggerConfig, &trigger); err != nil {
			log.Printf("RULE: Failed to migrate rule %s: invalid trigger config: %v", rule.ID, err)
			continue
		}
		if trigger.DeviceID == "" {
			continue
		}
		rule.TriggerDeviceID = trigger.DeviceID
		s.rules.Save(rule)
		migrated++
	}
	if migrated > 0 {
		log.Printf("RULE: Migrated %d rules with derived triggerDeviceId", migrated)
	}
}
