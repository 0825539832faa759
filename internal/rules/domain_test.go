package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugogu/financial-journal-maker-sub000/internal/rules/expression"
)

func TestVariableDefinitionValidate(t *testing.T) {
	valid := VariableDefinition{Name: "amount", Type: expression.TypeMoney, Currency: "EUR"}
	assert.NoError(t, valid.Validate())

	cases := []struct {
		name string
		def  VariableDefinition
	}{
		{"bad name", VariableDefinition{Name: "Amount", Type: expression.TypeMoney}},
		{"empty name", VariableDefinition{Name: "", Type: expression.TypeMoney}},
		{"unknown type", VariableDefinition{Name: "amount", Type: "FLOAT"}},
		{"bad currency", VariableDefinition{Name: "amount", Type: expression.TypeMoney, Currency: "ZZZ"}},
	}
	for _, tc := range cases {
		assert.Error(t, tc.def.Validate(), tc.name)
	}
}

func TestEntryTemplateValidateRejectsDuplicateVariables(t *testing.T) {
	template := EntryTemplate{
		Variables: []VariableDefinition{
			{Name: "amount", Type: expression.TypeMoney},
			{Name: "amount", Type: expression.TypeDecimal},
		},
	}
	err := template.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than once")
}

func TestEntryTemplateValidateRejectsBadExpression(t *testing.T) {
	template := EntryTemplate{
		Variables: []VariableDefinition{{Name: "amount", Type: expression.TypeMoney}},
		Lines: []EntryLine{
			{AccountCode: "cash", EntryType: EntryDebit, AmountExpression: "amount +"},
		},
	}
	assert.Error(t, template.Validate())
}

func TestHasDebitAndCredit(t *testing.T) {
	both := EntryTemplate{Lines: []EntryLine{
		{EntryType: EntryDebit},
		{EntryType: EntryCredit},
	}}
	assert.True(t, both.HasDebitAndCredit())

	debitOnly := EntryTemplate{Lines: []EntryLine{{EntryType: EntryDebit}}}
	assert.False(t, debitOnly.HasDebitAndCredit())
	assert.False(t, EntryTemplate{}.HasDebitAndCredit())
}

func TestTriggerConditionParse(t *testing.T) {
	cond := TriggerCondition{Tree: json.RawMessage(
		`{"type":"AND","conditions":[{"type":"SIMPLE","field":"status","operator":"EQUALS","value":"POSTED"}]}`)}
	node, err := cond.Parse()
	require.NoError(t, err)
	assert.NotNil(t, node)

	malformed := TriggerCondition{Tree: json.RawMessage(`{"type":"AND","conditions":[]}`)}
	_, err = malformed.Parse()
	assert.Error(t, err)
}

func TestRuleSnapshotRoundTrip(t *testing.T) {
	rule := AccountingRule{Code: "R-1", Name: "Rule", Description: "desc", Status: StatusActive}
	snap := rule.Snapshot()
	assert.Equal(t, RuleSnapshot{Code: "R-1", Name: "Rule", Description: "desc", Status: StatusActive}, snap)
}
