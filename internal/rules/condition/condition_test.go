package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event() map[string]any {
	return map[string]any{
		"type":   "DEPOSIT",
		"amount": 150.0,
		"account": map[string]any{
			"currency": "USD",
			"owner": map[string]any{
				"country": "DE",
			},
		},
		"tags": "retail,priority",
	}
}

func TestDecodeSimple(t *testing.T) {
	node, err := Decode([]byte(`{"type":"SIMPLE","field":"amount","operator":"GREATER_THAN","value":100}`))
	require.NoError(t, err)
	simple, ok := node.(Simple)
	require.True(t, ok)
	assert.Equal(t, "amount", simple.Field)
	assert.Equal(t, OpGreaterThan, simple.Operator)
}

func TestDecodeRejectsInvalidNodes(t *testing.T) {
	cases := []string{
		`{"type":"SIMPLE","operator":"EQUALS","value":1}`,
		`{"type":"SIMPLE","field":"x","operator":"LIKE","value":1}`,
		`{"type":"AND","conditions":[]}`,
		`{"type":"XOR","conditions":[{"type":"SIMPLE","field":"x","operator":"EQUALS","value":1}]}`,
	}
	for _, raw := range cases {
		_, err := Decode([]byte(raw))
		assert.Error(t, err, "expected %s to fail", raw)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	root := And{Children: []Node{
		Simple{Field: "type", Operator: OpEquals, Value: "DEPOSIT"},
		Or{Children: []Node{
			Simple{Field: "amount", Operator: OpGreaterThan, Value: 100.0},
			Simple{Field: "account.currency", Operator: OpIn, Value: []any{"USD", "EUR"}},
		}},
	}}
	raw, err := Encode(root)
	require.NoError(t, err)
	decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.True(t, Evaluate(decoded, event()))
}

func TestResolveDottedPath(t *testing.T) {
	assert.Equal(t, "DE", Resolve("account.owner.country", event()))
	assert.Nil(t, Resolve("account.owner.city", event()))
	assert.Nil(t, Resolve("amount.currency", event()))
}

func TestMissingFieldNullSemantics(t *testing.T) {
	eq := Simple{Field: "missing", Operator: OpEquals, Value: "x"}
	ne := Simple{Field: "missing", Operator: OpNotEquals, Value: "x"}
	assert.False(t, Evaluate(eq, event()))
	assert.True(t, Evaluate(ne, event()))
}

func TestNumericAndStringEquality(t *testing.T) {
	assert.True(t, Evaluate(Simple{Field: "amount", Operator: OpEquals, Value: "150.00"}, event()))
	assert.True(t, Evaluate(Simple{Field: "type", Operator: OpEquals, Value: "DEPOSIT"}, event()))
	assert.False(t, Evaluate(Simple{Field: "type", Operator: OpEquals, Value: "WITHDRAWAL"}, event()))
}

func TestComparisonOperators(t *testing.T) {
	assert.True(t, Evaluate(Simple{Field: "amount", Operator: OpGreaterThan, Value: 100}, event()))
	assert.False(t, Evaluate(Simple{Field: "amount", Operator: OpLessThan, Value: 100}, event()))
	assert.True(t, Evaluate(Simple{Field: "amount", Operator: OpGreaterThanOrEquals, Value: 150}, event()))
	assert.True(t, Evaluate(Simple{Field: "amount", Operator: OpLessThanOrEquals, Value: "150"}, event()))
}

func TestContainsAndMatches(t *testing.T) {
	assert.True(t, Evaluate(Simple{Field: "tags", Operator: OpContains, Value: "priority"}, event()))
	assert.True(t, Evaluate(Simple{Field: "type", Operator: OpMatches, Value: "DEP.*"}, event()))
	// Partial match is not enough: the pattern is anchored.
	assert.False(t, Evaluate(Simple{Field: "type", Operator: OpMatches, Value: "DEP"}, event()))
	// Invalid patterns never match.
	assert.False(t, Evaluate(Simple{Field: "type", Operator: OpMatches, Value: "("}, event()))
}

func TestMembership(t *testing.T) {
	in := Simple{Field: "account.currency", Operator: OpIn, Value: []any{"USD", "EUR"}}
	notIn := Simple{Field: "account.currency", Operator: OpNotIn, Value: []any{"GBP"}}
	assert.True(t, Evaluate(in, event()))
	assert.True(t, Evaluate(notIn, event()))
	assert.True(t, Evaluate(Simple{Field: "missing", Operator: OpNotIn, Value: []any{"x"}}, event()))
	assert.False(t, Evaluate(Simple{Field: "missing", Operator: OpIn, Value: []any{"x"}}, event()))
}

func TestEvaluateAllEmptyMatches(t *testing.T) {
	result := EvaluateAll(nil, event())
	assert.True(t, result.Matched)
}

func TestEvaluateAllReturnsFirstFailureReason(t *testing.T) {
	conditions := []Condition{
		{Description: "must be a withdrawal", Root: Simple{Field: "type", Operator: OpEquals, Value: "WITHDRAWAL"}},
		{Description: "amount above threshold", Root: Simple{Field: "amount", Operator: OpGreaterThan, Value: 1}},
	}
	result := EvaluateAll(conditions, event())
	assert.False(t, result.Matched)
	assert.Equal(t, "must be a withdrawal", result.Reason)
}

func TestEvaluateAllFallbackReason(t *testing.T) {
	conditions := []Condition{{Root: Simple{Field: "type", Operator: OpEquals, Value: "X"}}}
	result := EvaluateAll(conditions, event())
	assert.False(t, result.Matched)
	assert.Equal(t, "trigger condition not satisfied", result.Reason)
}
