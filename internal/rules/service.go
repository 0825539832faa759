package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hugogu/financial-journal-maker-sub000/internal/rules/numscript"
	"github.com/hugogu/financial-journal-maker-sub000/internal/shared"
)

// Repository abstracts read access and transactional mutation.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRule(ctx context.Context, id uuid.UUID) (AccountingRule, error)
	ListRules(ctx context.Context) ([]AccountingRule, error)
	GetEntryTemplate(ctx context.Context, ruleID uuid.UUID) (EntryTemplate, error)
	GetTriggerConditions(ctx context.Context, ruleID uuid.UUID) ([]TriggerCondition, error)
	ListVersions(ctx context.Context, ruleID uuid.UUID) ([]RuleVersion, error)
}

// TxRepository exposes the mutations available inside one transaction. A
// lifecycle operation's guard checks, field mutation, save and version
// snapshot all commit or roll back together.
type TxRepository interface {
	GetRuleForUpdate(ctx context.Context, id uuid.UUID) (AccountingRule, error)
	InsertRule(ctx context.Context, rule AccountingRule) (AccountingRule, error)
	SaveRule(ctx context.Context, rule AccountingRule, expectedToken int64) (AccountingRule, error)
	ReplaceEntryTemplate(ctx context.Context, template EntryTemplate) error
	ReplaceTriggerConditions(ctx context.Context, ruleID uuid.UUID, conditions []TriggerCondition) error
	GetEntryTemplate(ctx context.Context, ruleID uuid.UUID) (EntryTemplate, error)
	GetTriggerConditions(ctx context.Context, ruleID uuid.UUID) ([]TriggerCondition, error)
	InsertVersion(ctx context.Context, version RuleVersion) error
	GetVersion(ctx context.Context, ruleID uuid.UUID, number int) (RuleVersion, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error
}

// AuditPort records rule events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the rule lifecycle, simulation and script generation.
type Service struct {
	repo   Repository
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the rule service.
func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateRuleInput groups the fields of a new rule.
type CreateRuleInput struct {
	Code                  string
	Name                  string
	Description           string
	SharedAcrossScenarios bool
	Template              EntryTemplate
	Conditions            []TriggerCondition
	Actor                 string
}

// UpdateRuleInput carries a draft edit. Every field is optional: nil keeps
// the stored value, while Template and Conditions, when present,
// destructively replace the stored ones. ConcurrencyToken must be the token
// the caller last read.
type UpdateRuleInput struct {
	RuleID                uuid.UUID
	Name                  *string
	Description           *string
	SharedAcrossScenarios *bool
	Template              *EntryTemplate
	Conditions            *[]TriggerCondition
	ConcurrencyToken      int64
	Actor                 string
}

func (in CreateRuleInput) validate() error {
	var problems []string
	if strings.TrimSpace(in.Code) == "" {
		problems = append(problems, "code is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		problems = append(problems, "name is required")
	}
	if len(problems) > 0 {
		return &ValidationError{Field: "rule", Problems: problems}
	}
	if err := in.Template.Validate(); err != nil {
		return &ValidationError{Field: "entryTemplate", Problems: []string{err.Error()}}
	}
	return validateConditions(in.Conditions)
}

func validateConditions(conditions []TriggerCondition) error {
	for i, cond := range conditions {
		if _, err := cond.Parse(); err != nil {
			return &ValidationError{
				Field:    fmt.Sprintf("triggerConditions[%d]", i),
				Problems: []string{err.Error()},
			}
		}
	}
	return nil
}

// CreateRule creates a DRAFT rule at version 1 with its initial snapshot.
func (s *Service) CreateRule(ctx context.Context, in CreateRuleInput) (AccountingRule, error) {
	if err := in.validate(); err != nil {
		return AccountingRule{}, err
	}
	rule := AccountingRule{
		ID:                    uuid.New(),
		Code:                  in.Code,
		Name:                  in.Name,
		Description:           in.Description,
		Status:                StatusDraft,
		SharedAcrossScenarios: in.SharedAcrossScenarios,
		CurrentVersion:        1,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertRule(ctx, rule)
		if err != nil {
			return err
		}
		rule = inserted
		if err := s.writeOwned(ctx, tx, rule.ID, &in.Template, &in.Conditions); err != nil {
			return err
		}
		return tx.InsertVersion(ctx, s.newVersion(rule, "Initial version", in.Actor))
	})
	if err != nil {
		return AccountingRule{}, err
	}
	s.record(ctx, in.Actor, "rule.create", rule)
	return rule, nil
}

// UpdateRule edits a DRAFT rule under optimistic concurrency.
func (s *Service) UpdateRule(ctx context.Context, in UpdateRuleInput) (AccountingRule, error) {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return AccountingRule{}, &ValidationError{Field: "name", Problems: []string{"name must not be blank"}}
	}
	if in.Template != nil {
		if err := in.Template.Validate(); err != nil {
			return AccountingRule{}, &ValidationError{Field: "entryTemplate", Problems: []string{err.Error()}}
		}
	}
	if in.Conditions != nil {
		if err := validateConditions(*in.Conditions); err != nil {
			return AccountingRule{}, err
		}
	}
	var updated AccountingRule
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rule, err := tx.GetRuleForUpdate(ctx, in.RuleID)
		if err != nil {
			return err
		}
		if err := ensureTransition(rule.Status, TransitionUpdate); err != nil {
			return err
		}
		if rule.ConcurrencyToken != in.ConcurrencyToken {
			return ErrVersionConflict
		}
		if in.Name != nil {
			rule.Name = *in.Name
		}
		if in.Description != nil {
			rule.Description = *in.Description
		}
		if in.SharedAcrossScenarios != nil {
			rule.SharedAcrossScenarios = *in.SharedAcrossScenarios
		}
		rule.CurrentVersion++
		saved, err := tx.SaveRule(ctx, rule, in.ConcurrencyToken)
		if err != nil {
			return err
		}
		if err := s.writeOwned(ctx, tx, rule.ID, in.Template, in.Conditions); err != nil {
			return err
		}
		if err := tx.InsertVersion(ctx, s.newVersion(saved, "Updated rule", in.Actor)); err != nil {
			return err
		}
		updated = saved
		return nil
	})
	if err != nil {
		return AccountingRule{}, err
	}
	s.record(ctx, in.Actor, "rule.update", updated)
	return updated, nil
}

// Activate moves a DRAFT rule to ACTIVE once its template carries at least
// one debit and one credit line.
func (s *Service) Activate(ctx context.Context, id uuid.UUID, actor string) (AccountingRule, error) {
	rule, err := s.transition(ctx, id, TransitionActivate, "Activated rule", actor, func(ctx context.Context, tx TxRepository, rule AccountingRule) error {
		template, err := tx.GetEntryTemplate(ctx, rule.ID)
		if err != nil {
			return err
		}
		if !template.HasDebitAndCredit() {
			return &ValidationError{
				Field:    "entryTemplate",
				Problems: []string{"rule must have at least one debit and one credit line before activation"},
			}
		}
		return nil
	})
	if err != nil {
		return AccountingRule{}, err
	}
	s.record(ctx, actor, "rule.activate", rule)
	return rule, nil
}

// Archive retires a DRAFT or ACTIVE rule.
func (s *Service) Archive(ctx context.Context, id uuid.UUID, actor string) (AccountingRule, error) {
	rule, err := s.transition(ctx, id, TransitionArchive, "Archived rule", actor, nil)
	if err != nil {
		return AccountingRule{}, err
	}
	s.record(ctx, actor, "rule.archive", rule)
	return rule, nil
}

// Restore returns an ARCHIVED rule to DRAFT.
func (s *Service) Restore(ctx context.Context, id uuid.UUID, actor string) (AccountingRule, error) {
	rule, err := s.transition(ctx, id, TransitionRestore, "Restored to draft", actor, nil)
	if err != nil {
		return AccountingRule{}, err
	}
	s.record(ctx, actor, "rule.restore", rule)
	return rule, nil
}

// transition runs one guarded lifecycle move: check the table, run the
// extra guard, mutate, save, snapshot.
func (s *Service) transition(ctx context.Context, id uuid.UUID, t Transition, change string, actor string, guard func(context.Context, TxRepository, AccountingRule) error) (AccountingRule, error) {
	var result AccountingRule
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rule, err := tx.GetRuleForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := ensureTransition(rule.Status, t); err != nil {
			return err
		}
		if guard != nil {
			if err := guard(ctx, tx, rule); err != nil {
				return err
			}
		}
		rule.Status = transitionTarget(rule.Status, t)
		rule.CurrentVersion++
		saved, err := tx.SaveRule(ctx, rule, rule.ConcurrencyToken)
		if err != nil {
			return err
		}
		if err := tx.InsertVersion(ctx, s.newVersion(saved, change, actor)); err != nil {
			return err
		}
		result = saved
		return nil
	})
	return result, err
}

// RollbackToVersion restores a rule's mutable fields from an earlier
// snapshot and forces the rule back to DRAFT. An ACTIVE rule must be
// archived first.
func (s *Service) RollbackToVersion(ctx context.Context, id uuid.UUID, versionNumber int, actor string) (AccountingRule, error) {
	var result AccountingRule
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rule, err := tx.GetRuleForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := ensureTransition(rule.Status, TransitionRollback); err != nil {
			return err
		}
		version, err := tx.GetVersion(ctx, id, versionNumber)
		if err != nil {
			return err
		}
		rule.Name = version.Snapshot.Name
		rule.Description = version.Snapshot.Description
		rule.Status = StatusDraft
		rule.CurrentVersion++
		saved, err := tx.SaveRule(ctx, rule, rule.ConcurrencyToken)
		if err != nil {
			return err
		}
		change := fmt.Sprintf("Rolled back to version %d", versionNumber)
		if err := tx.InsertVersion(ctx, s.newVersion(saved, change, actor)); err != nil {
			return err
		}
		result = saved
		return nil
	})
	if err != nil {
		return AccountingRule{}, err
	}
	s.record(ctx, actor, "rule.rollback", result)
	return result, nil
}

// DeleteRule removes a DRAFT or ARCHIVED rule together with its owned
// template and conditions. The version history is retained.
func (s *Service) DeleteRule(ctx context.Context, id uuid.UUID, actor string) error {
	var deleted AccountingRule
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rule, err := tx.GetRuleForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := ensureTransition(rule.Status, TransitionDelete); err != nil {
			return err
		}
		deleted = rule
		return tx.DeleteRule(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, actor, "rule.delete", deleted)
	return nil
}

// CloneRule deep-copies a rule, its template and conditions into a new
// DRAFT rule at version 1.
func (s *Service) CloneRule(ctx context.Context, sourceID uuid.UUID, newCode, newName, actor string) (AccountingRule, error) {
	if strings.TrimSpace(newCode) == "" {
		return AccountingRule{}, &ValidationError{Field: "code", Problems: []string{"code is required"}}
	}
	var clone AccountingRule
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		source, err := tx.GetRuleForUpdate(ctx, sourceID)
		if err != nil {
			return err
		}
		template, err := tx.GetEntryTemplate(ctx, sourceID)
		if err != nil {
			return err
		}
		conditions, err := tx.GetTriggerConditions(ctx, sourceID)
		if err != nil {
			return err
		}
		name := newName
		if strings.TrimSpace(name) == "" {
			name = source.Name
		}
		clone = AccountingRule{
			ID:                    uuid.New(),
			Code:                  newCode,
			Name:                  name,
			Description:           source.Description,
			Status:                StatusDraft,
			SharedAcrossScenarios: source.SharedAcrossScenarios,
			CurrentVersion:        1,
		}
		inserted, err := tx.InsertRule(ctx, clone)
		if err != nil {
			return err
		}
		clone = inserted
		// The repository may hand back slices aliasing its stored state, so
		// copy before stamping fresh IDs.
		template.ID = uuid.New()
		template.RuleID = clone.ID
		template.Lines = append([]EntryLine(nil), template.Lines...)
		for i := range template.Lines {
			template.Lines[i].ID = uuid.New()
		}
		conditions = append([]TriggerCondition(nil), conditions...)
		for i := range conditions {
			conditions[i].ID = uuid.New()
			conditions[i].RuleID = clone.ID
		}
		if err := s.writeOwned(ctx, tx, clone.ID, &template, &conditions); err != nil {
			return err
		}
		change := fmt.Sprintf("Cloned from rule: %s", source.Code)
		return tx.InsertVersion(ctx, s.newVersion(clone, change, actor))
	})
	if err != nil {
		return AccountingRule{}, err
	}
	s.record(ctx, actor, "rule.clone", clone)
	return clone, nil
}

// RuleDetail aggregates a rule with its owned documents.
type RuleDetail struct {
	Rule       AccountingRule     `json:"rule"`
	Template   EntryTemplate      `json:"template"`
	Conditions []TriggerCondition `json:"conditions"`
}

// GetRule loads a rule together with its template and conditions.
func (s *Service) GetRule(ctx context.Context, id uuid.UUID) (RuleDetail, error) {
	rule, err := s.repo.GetRule(ctx, id)
	if err != nil {
		return RuleDetail{}, err
	}
	template, err := s.repo.GetEntryTemplate(ctx, id)
	if err != nil {
		return RuleDetail{}, err
	}
	conditions, err := s.repo.GetTriggerConditions(ctx, id)
	if err != nil {
		return RuleDetail{}, err
	}
	return RuleDetail{Rule: rule, Template: template, Conditions: conditions}, nil
}

// ListRules returns every rule.
func (s *Service) ListRules(ctx context.Context) ([]AccountingRule, error) {
	return s.repo.ListRules(ctx)
}

// ListVersions returns a rule's append-only history, newest first.
func (s *Service) ListVersions(ctx context.Context, id uuid.UUID) ([]RuleVersion, error) {
	if _, err := s.repo.GetRule(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListVersions(ctx, id)
}

// GenerateScript renders the rule's ledger script and bundles the
// validator's verdict on it.
func (s *Service) GenerateScript(ctx context.Context, id uuid.UUID) (numscript.GenerateResult, error) {
	template, err := s.repo.GetEntryTemplate(ctx, id)
	if err != nil {
		return numscript.GenerateResult{}, err
	}
	return numscript.Generate(toScriptInput(template)), nil
}

func toScriptInput(template EntryTemplate) numscript.Input {
	in := numscript.Input{}
	for _, v := range template.Variables {
		in.Variables = append(in.Variables, numscript.Variable{Name: v.Name, Type: v.Type})
	}
	for _, line := range template.Lines {
		in.Lines = append(in.Lines, numscript.Line{
			AccountCode:      line.AccountCode,
			Type:             numscript.LineType(line.EntryType),
			AmountExpression: line.AmountExpression,
		})
	}
	return in
}

// writeOwned replaces the rule's owned documents when supplied. The old
// lines and conditions are discarded, not merged.
func (s *Service) writeOwned(ctx context.Context, tx TxRepository, ruleID uuid.UUID, template *EntryTemplate, conditions *[]TriggerCondition) error {
	if template != nil {
		t := *template
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		t.RuleID = ruleID
		for i := range t.Lines {
			if t.Lines[i].ID == uuid.Nil {
				t.Lines[i].ID = uuid.New()
			}
			t.Lines[i].SequenceNumber = i + 1
		}
		if err := tx.ReplaceEntryTemplate(ctx, t); err != nil {
			return err
		}
	}
	if conditions != nil {
		conds := *conditions
		for i := range conds {
			if conds[i].ID == uuid.Nil {
				conds[i].ID = uuid.New()
			}
			conds[i].RuleID = ruleID
		}
		if err := tx.ReplaceTriggerConditions(ctx, ruleID, conds); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) newVersion(rule AccountingRule, change, actor string) RuleVersion {
	return RuleVersion{
		ID:                uuid.New(),
		RuleID:            rule.ID,
		VersionNumber:     rule.CurrentVersion,
		Snapshot:          rule.Snapshot(),
		ChangeDescription: change,
		CreatedAt:         s.now(),
		CreatedBy:         actor,
	}
}

func (s *Service) record(ctx context.Context, actor, action string, rule AccountingRule) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "accounting_rule",
		EntityID: rule.ID.String(),
		Meta: map[string]any{
			"code":    rule.Code,
			"status":  string(rule.Status),
			"version": rule.CurrentVersion,
		},
		At: s.now(),
	})
}
