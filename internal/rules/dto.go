package rules

import (
	"encoding/json"

	"github.com/hugogu/financial-journal-maker-sub000/internal/rules/expression"
)

type variableDTO struct {
	Name        string `json:"name" validate:"required"`
	Type        string `json:"type" validate:"required,oneof=MONEY DECIMAL BOOLEAN STRING"`
	Currency    string `json:"currency,omitempty"`
	Description string `json:"description,omitempty"`
}

type lineDTO struct {
	AccountCode      string `json:"accountCode" validate:"required"`
	EntryType        string `json:"entryType" validate:"required,oneof=DEBIT CREDIT"`
	AmountExpression string `json:"amountExpression" validate:"required"`
	MemoTemplate     string `json:"memoTemplate,omitempty"`
}

type templateDTO struct {
	Description string        `json:"description,omitempty"`
	Variables   []variableDTO `json:"variables" validate:"dive"`
	Lines       []lineDTO     `json:"lines" validate:"dive"`
}

type conditionDTO struct {
	Description string          `json:"description,omitempty"`
	Tree        json.RawMessage `json:"tree" validate:"required"`
}

type createRuleRequest struct {
	Code                  string         `json:"code" validate:"required"`
	Name                  string         `json:"name" validate:"required"`
	Description           string         `json:"description,omitempty"`
	SharedAcrossScenarios bool           `json:"sharedAcrossScenarios"`
	Template              templateDTO    `json:"template"`
	Conditions            []conditionDTO `json:"conditions" validate:"dive"`
}

// updateRuleRequest is a partial update: omitted fields keep their stored
// values.
type updateRuleRequest struct {
	Name                  *string         `json:"name,omitempty"`
	Description           *string         `json:"description,omitempty"`
	SharedAcrossScenarios *bool           `json:"sharedAcrossScenarios,omitempty"`
	Template              *templateDTO    `json:"template,omitempty"`
	Conditions            *[]conditionDTO `json:"conditions,omitempty"`
	ConcurrencyToken      int64           `json:"concurrencyToken"`
}

type cloneRuleRequest struct {
	Code string `json:"code" validate:"required"`
	Name string `json:"name,omitempty"`
}

type rollbackRequest struct {
	VersionNumber int `json:"versionNumber" validate:"required,min=1"`
}

type simulateRequest struct {
	EventData map[string]any `json:"eventData" validate:"required"`
}

type simulateBatchRequest struct {
	Events []map[string]any `json:"events" validate:"required,min=1"`
}

type validateExpressionRequest struct {
	Expression string        `json:"expression"`
	Variables  []variableDTO `json:"variables" validate:"dive"`
}

type validateScriptRequest struct {
	Script       string   `json:"script" validate:"required"`
	AccountCodes []string `json:"accountCodes,omitempty"`
}

type referenceRequest struct {
	ScenarioID string `json:"scenarioId" validate:"required"`
}

func (d templateDTO) toDomain() EntryTemplate {
	t := EntryTemplate{Description: d.Description}
	for _, v := range d.Variables {
		t.Variables = append(t.Variables, VariableDefinition{
			Name:        v.Name,
			Type:        expression.Type(v.Type),
			Currency:    v.Currency,
			Description: v.Description,
		})
	}
	for i, line := range d.Lines {
		t.Lines = append(t.Lines, EntryLine{
			SequenceNumber:   i + 1,
			AccountCode:      line.AccountCode,
			EntryType:        EntryType(line.EntryType),
			AmountExpression: line.AmountExpression,
			MemoTemplate:     line.MemoTemplate,
		})
	}
	return t
}

func toConditions(dtos []conditionDTO) []TriggerCondition {
	var out []TriggerCondition
	for _, d := range dtos {
		out = append(out, TriggerCondition{Description: d.Description, Tree: d.Tree})
	}
	return out
}

func toSchema(dtos []variableDTO) map[string]expression.Type {
	schema := make(map[string]expression.Type, len(dtos))
	for _, v := range dtos {
		schema[v.Name] = expression.Type(v.Type)
	}
	return schema
}
