// Package rules hosts the accounting-rule engine: the rule aggregate and
// its entry template, trigger conditions, lifecycle state machine, version
// history, simulation, and ledger-script generation.
package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/currency"

	"github.com/hugogu/financial-journal-maker-sub000/internal/rules/condition"
	"github.com/hugogu/financial-journal-maker-sub000/internal/rules/expression"
)

// RuleStatus enumerates lifecycle states.
type RuleStatus string

const (
	StatusDraft    RuleStatus = "DRAFT"
	StatusActive   RuleStatus = "ACTIVE"
	StatusArchived RuleStatus = "ARCHIVED"
)

// EntryType marks a line as a debit or credit leg.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

var variableNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_.]*$`)

// VariableDefinition declares one typed variable available to a template's
// expressions.
type VariableDefinition struct {
	Name        string          `json:"name"`
	Type        expression.Type `json:"type"`
	Currency    string          `json:"currency,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Validate checks the declaration itself; the currency, when present, must
// be a known ISO 4217 unit.
func (v VariableDefinition) Validate() error {
	if !variableNamePattern.MatchString(v.Name) {
		return fmt.Errorf("rules: invalid variable name %q", v.Name)
	}
	if !expression.KnownType(v.Type) {
		return fmt.Errorf("rules: variable %q has unknown type %q", v.Name, v.Type)
	}
	if v.Currency != "" {
		if _, err := currency.ParseISO(v.Currency); err != nil {
			return fmt.Errorf("rules: variable %q has invalid currency %q", v.Name, v.Currency)
		}
	}
	return nil
}

// EntryLine is one debit or credit leg of a rule's entry template.
type EntryLine struct {
	ID               uuid.UUID `json:"id"`
	SequenceNumber   int       `json:"sequenceNumber"`
	AccountCode      string    `json:"accountCode"`
	EntryType        EntryType `json:"entryType"`
	AmountExpression string    `json:"amountExpression"`
	MemoTemplate     string    `json:"memoTemplate,omitempty"`
}

// EntryTemplate owns the ordered entry lines and the variable schema their
// expressions may reference. Replacing it is a destructive overwrite.
type EntryTemplate struct {
	ID          uuid.UUID            `json:"id"`
	RuleID      uuid.UUID            `json:"ruleId"`
	Description string               `json:"description,omitempty"`
	Variables   []VariableDefinition `json:"variables"`
	Lines       []EntryLine          `json:"lines"`
}

// Schema exposes the variable declarations as the lookup map the expression
// engine consumes.
func (t EntryTemplate) Schema() map[string]expression.Type {
	schema := make(map[string]expression.Type, len(t.Variables))
	for _, v := range t.Variables {
		schema[v.Name] = v.Type
	}
	return schema
}

// HasDebitAndCredit reports whether the template satisfies the activation
// invariant: at least one leg on each side.
func (t EntryTemplate) HasDebitAndCredit() bool {
	var debit, credit bool
	for _, line := range t.Lines {
		switch line.EntryType {
		case EntryDebit:
			debit = true
		case EntryCredit:
			credit = true
		}
	}
	return debit && credit
}

// Validate checks the template's declarations and lines.
func (t EntryTemplate) Validate() error {
	seen := make(map[string]struct{}, len(t.Variables))
	for _, v := range t.Variables {
		if err := v.Validate(); err != nil {
			return err
		}
		if _, dup := seen[v.Name]; dup {
			return fmt.Errorf("rules: variable %q declared more than once", v.Name)
		}
		seen[v.Name] = struct{}{}
	}
	for i, line := range t.Lines {
		if line.AccountCode == "" {
			return fmt.Errorf("rules: line %d missing account code", i+1)
		}
		if line.EntryType != EntryDebit && line.EntryType != EntryCredit {
			return fmt.Errorf("rules: line %d has unknown entry type %q", i+1, line.EntryType)
		}
		if result := expression.Validate(line.AmountExpression, t.Schema()); !result.Valid {
			return fmt.Errorf("rules: line %d amount expression invalid: %v", i+1, result.Errors)
		}
	}
	return nil
}

// TriggerCondition is a persisted predicate tree gating a rule's firing.
// The tree document is stored as received so that client-facing responses
// round-trip it losslessly.
type TriggerCondition struct {
	ID          uuid.UUID       `json:"id"`
	RuleID      uuid.UUID       `json:"ruleId"`
	Description string          `json:"description,omitempty"`
	Tree        json.RawMessage `json:"tree"`
}

// Parse decodes the stored document into its evaluable form.
func (c TriggerCondition) Parse() (condition.Node, error) {
	return condition.Decode(c.Tree)
}

// AccountingRule is the aggregate root.
type AccountingRule struct {
	ID                    uuid.UUID  `json:"id"`
	Code                  string     `json:"code"`
	Name                  string     `json:"name"`
	Description           string     `json:"description,omitempty"`
	Status                RuleStatus `json:"status"`
	SharedAcrossScenarios bool       `json:"sharedAcrossScenarios"`
	CurrentVersion        int        `json:"currentVersion"`
	ConcurrencyToken      int64      `json:"concurrencyToken"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// RuleSnapshot is the subset of mutable fields captured in a version row.
type RuleSnapshot struct {
	Code        string     `json:"code"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      RuleStatus `json:"status"`
}

// Snapshot captures the rule's current mutable fields.
func (r AccountingRule) Snapshot() RuleSnapshot {
	return RuleSnapshot{Code: r.Code, Name: r.Name, Description: r.Description, Status: r.Status}
}

// RuleVersion is one immutable, append-only history row. VersionNumber
// always equals the rule's CurrentVersion at the moment it was written.
type RuleVersion struct {
	ID                uuid.UUID    `json:"id"`
	RuleID            uuid.UUID    `json:"ruleId"`
	VersionNumber     int          `json:"versionNumber"`
	Snapshot          RuleSnapshot `json:"snapshot"`
	ChangeDescription string       `json:"changeDescription"`
	CreatedAt         time.Time    `json:"createdAt"`
	CreatedBy         string       `json:"createdBy,omitempty"`
}

var (
	// ErrRuleNotFound indicates an unknown rule id or code.
	ErrRuleNotFound = errors.New("rules: rule not found")
	// ErrVersionNotFound indicates an unknown version number.
	ErrVersionNotFound = errors.New("rules: version not found")
	// ErrCodeExists indicates a rule code collision on create or clone.
	ErrCodeExists = errors.New("rules: rule code already exists")
	// ErrVersionConflict indicates the caller's concurrency token is stale.
	ErrVersionConflict = errors.New("rules: rule was modified concurrently, re-read and retry")
)

// InvalidTransitionError names the illegal lifecycle move that was
// attempted.
type InvalidTransitionError struct {
	Current    RuleStatus
	Transition Transition
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("rules: cannot %s a rule in status %s", e.Transition, e.Current)
}

// ValidationError carries a field name and its structured problem list.
type ValidationError struct {
	Field    string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rules: invalid %s: %v", e.Field, e.Problems)
}
