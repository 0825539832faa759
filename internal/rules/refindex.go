package rules

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ReferenceIndex tracks which scenarios reference a shared rule. It is a
// replaceable collaborator, not engine state: the engine never consults it
// for lifecycle decisions.
type ReferenceIndex struct {
	client *redis.Client
}

// NewReferenceIndex wraps a redis client.
func NewReferenceIndex(client *redis.Client) *ReferenceIndex {
	return &ReferenceIndex{client: client}
}

func referenceKey(ruleID uuid.UUID) string {
	return "rule_refs:" + ruleID.String()
}

// Register records that a scenario references the rule.
func (x *ReferenceIndex) Register(ctx context.Context, ruleID uuid.UUID, scenarioID string) error {
	if scenarioID == "" {
		return fmt.Errorf("rules: scenario id required")
	}
	return x.client.SAdd(ctx, referenceKey(ruleID), scenarioID).Err()
}

// Unregister removes a scenario's reference to the rule.
func (x *ReferenceIndex) Unregister(ctx context.Context, ruleID uuid.UUID, scenarioID string) error {
	return x.client.SRem(ctx, referenceKey(ruleID), scenarioID).Err()
}

// List returns the scenarios currently referencing the rule.
func (x *ReferenceIndex) List(ctx context.Context, ruleID uuid.UUID) ([]string, error) {
	return x.client.SMembers(ctx, referenceKey(ruleID)).Result()
}

// Count returns the number of referencing scenarios.
func (x *ReferenceIndex) Count(ctx context.Context, ruleID uuid.UUID) (int64, error) {
	return x.client.SCard(ctx, referenceKey(ruleID)).Result()
}
