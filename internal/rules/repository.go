package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hugogu/financial-journal-maker-sub000/internal/platform/db"
)

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the postgres-backed rule repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const ruleColumns = `id, code, name, description, status, shared_across_scenarios, current_version, lock_version, created_at, updated_at`

func scanRule(row pgx.Row) (AccountingRule, error) {
	var r AccountingRule
	err := row.Scan(&r.ID, &r.Code, &r.Name, &r.Description, &r.Status, &r.SharedAcrossScenarios, &r.CurrentVersion, &r.ConcurrencyToken, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountingRule{}, ErrRuleNotFound
		}
		return AccountingRule{}, err
	}
	return r, nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) GetRule(ctx context.Context, id uuid.UUID) (AccountingRule, error) {
	row := r.db.QueryRow(ctx, `SELECT `+ruleColumns+` FROM accounting_rules WHERE id=$1`, id)
	return scanRule(row)
}

func (r *repository) ListRules(ctx context.Context) ([]AccountingRule, error) {
	rows, err := r.db.Query(ctx, `SELECT `+ruleColumns+` FROM accounting_rules ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rules []AccountingRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (r *repository) GetEntryTemplate(ctx context.Context, ruleID uuid.UUID) (EntryTemplate, error) {
	return getEntryTemplate(ctx, r.db, ruleID)
}

func (r *repository) GetTriggerConditions(ctx context.Context, ruleID uuid.UUID) ([]TriggerCondition, error) {
	return getTriggerConditions(ctx, r.db, ruleID)
}

func (r *repository) ListVersions(ctx context.Context, ruleID uuid.UUID) ([]RuleVersion, error) {
	rows, err := r.db.Query(ctx, `SELECT id, rule_id, version_number, snapshot, change_description, created_at, created_by
FROM rule_versions WHERE rule_id=$1 ORDER BY version_number DESC`, ruleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var versions []RuleVersion
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

func scanVersion(row pgx.Row) (RuleVersion, error) {
	var v RuleVersion
	var snapshot []byte
	if err := row.Scan(&v.ID, &v.RuleID, &v.VersionNumber, &snapshot, &v.ChangeDescription, &v.CreatedAt, &v.CreatedBy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RuleVersion{}, ErrVersionNotFound
		}
		return RuleVersion{}, err
	}
	if err := json.Unmarshal(snapshot, &v.Snapshot); err != nil {
		return RuleVersion{}, fmt.Errorf("rules: decode snapshot: %w", err)
	}
	return v, nil
}

// querier covers both pool and transaction so the read helpers can be
// shared.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func getEntryTemplate(ctx context.Context, q querier, ruleID uuid.UUID) (EntryTemplate, error) {
	var t EntryTemplate
	var variables []byte
	err := q.QueryRow(ctx, `SELECT id, rule_id, description, variables FROM entry_templates WHERE rule_id=$1`, ruleID).
		Scan(&t.ID, &t.RuleID, &t.Description, &variables)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EntryTemplate{RuleID: ruleID}, nil
		}
		return EntryTemplate{}, err
	}
	if len(variables) > 0 {
		if err := json.Unmarshal(variables, &t.Variables); err != nil {
			return EntryTemplate{}, fmt.Errorf("rules: decode variables: %w", err)
		}
	}
	rows, err := q.Query(ctx, `SELECT id, sequence_number, account_code, entry_type, amount_expression, memo_template
FROM entry_lines WHERE template_id=$1 ORDER BY sequence_number ASC`, t.ID)
	if err != nil {
		return EntryTemplate{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line EntryLine
		if err := rows.Scan(&line.ID, &line.SequenceNumber, &line.AccountCode, &line.EntryType, &line.AmountExpression, &line.MemoTemplate); err != nil {
			return EntryTemplate{}, err
		}
		t.Lines = append(t.Lines, line)
	}
	return t, rows.Err()
}

func getTriggerConditions(ctx context.Context, q querier, ruleID uuid.UUID) ([]TriggerCondition, error) {
	rows, err := q.Query(ctx, `SELECT id, rule_id, description, tree FROM trigger_conditions WHERE rule_id=$1 ORDER BY id ASC`, ruleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var conditions []TriggerCondition
	for rows.Next() {
		var cond TriggerCondition
		var tree []byte
		if err := rows.Scan(&cond.ID, &cond.RuleID, &cond.Description, &tree); err != nil {
			return nil, err
		}
		cond.Tree = json.RawMessage(tree)
		conditions = append(conditions, cond)
	}
	return conditions, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetRuleForUpdate(ctx context.Context, id uuid.UUID) (AccountingRule, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+ruleColumns+` FROM accounting_rules WHERE id=$1 FOR UPDATE`, id)
	return scanRule(row)
}

func (r *txRepository) InsertRule(ctx context.Context, rule AccountingRule) (AccountingRule, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO accounting_rules (id, code, name, description, status, shared_across_scenarios, current_version)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING `+ruleColumns,
		rule.ID, rule.Code, rule.Name, rule.Description, rule.Status, rule.SharedAcrossScenarios, rule.CurrentVersion)
	inserted, err := scanRule(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return AccountingRule{}, ErrCodeExists
		}
		return AccountingRule{}, err
	}
	return inserted, nil
}

// SaveRule persists the mutable fields and bumps the concurrency token. A
// token mismatch means another writer committed since the caller's read.
func (r *txRepository) SaveRule(ctx context.Context, rule AccountingRule, expectedToken int64) (AccountingRule, error) {
	row := r.tx.QueryRow(ctx, `UPDATE accounting_rules
SET name=$3, description=$4, status=$5, shared_across_scenarios=$6, current_version=$7, lock_version=lock_version+1, updated_at=NOW()
WHERE id=$1 AND lock_version=$2
RETURNING `+ruleColumns,
		rule.ID, expectedToken, rule.Name, rule.Description, rule.Status, rule.SharedAcrossScenarios, rule.CurrentVersion)
	saved, err := scanRule(row)
	if err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			var exists bool
			if checkErr := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounting_rules WHERE id=$1)`, rule.ID).Scan(&exists); checkErr == nil && exists {
				return AccountingRule{}, ErrVersionConflict
			}
			return AccountingRule{}, ErrRuleNotFound
		}
		return AccountingRule{}, err
	}
	return saved, nil
}

// ReplaceEntryTemplate discards the rule's stored template and lines and
// writes the new ones.
func (r *txRepository) ReplaceEntryTemplate(ctx context.Context, template EntryTemplate) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM entry_templates WHERE rule_id=$1`, template.RuleID); err != nil {
		return err
	}
	variables, err := json.Marshal(template.Variables)
	if err != nil {
		return fmt.Errorf("rules: encode variables: %w", err)
	}
	if _, err := r.tx.Exec(ctx, `INSERT INTO entry_templates (id, rule_id, description, variables) VALUES ($1,$2,$3,$4)`,
		template.ID, template.RuleID, template.Description, variables); err != nil {
		return err
	}
	for _, line := range template.Lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO entry_lines (id, template_id, sequence_number, account_code, entry_type, amount_expression, memo_template)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			line.ID, template.ID, line.SequenceNumber, line.AccountCode, line.EntryType, line.AmountExpression, line.MemoTemplate); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) ReplaceTriggerConditions(ctx context.Context, ruleID uuid.UUID, conditions []TriggerCondition) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM trigger_conditions WHERE rule_id=$1`, ruleID); err != nil {
		return err
	}
	for _, cond := range conditions {
		if _, err := r.tx.Exec(ctx, `INSERT INTO trigger_conditions (id, rule_id, description, tree) VALUES ($1,$2,$3,$4)`,
			cond.ID, ruleID, cond.Description, []byte(cond.Tree)); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetEntryTemplate(ctx context.Context, ruleID uuid.UUID) (EntryTemplate, error) {
	return getEntryTemplate(ctx, r.tx, ruleID)
}

func (r *txRepository) GetTriggerConditions(ctx context.Context, ruleID uuid.UUID) ([]TriggerCondition, error) {
	return getTriggerConditions(ctx, r.tx, ruleID)
}

func (r *txRepository) InsertVersion(ctx context.Context, version RuleVersion) error {
	snapshot, err := json.Marshal(version.Snapshot)
	if err != nil {
		return fmt.Errorf("rules: encode snapshot: %w", err)
	}
	_, err = r.tx.Exec(ctx, `INSERT INTO rule_versions (id, rule_id, version_number, snapshot, change_description, created_at, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		version.ID, version.RuleID, version.VersionNumber, snapshot, version.ChangeDescription, version.CreatedAt, version.CreatedBy)
	return err
}

func (r *txRepository) GetVersion(ctx context.Context, ruleID uuid.UUID, number int) (RuleVersion, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, rule_id, version_number, snapshot, change_description, created_at, created_by
FROM rule_versions WHERE rule_id=$1 AND version_number=$2`, ruleID, number)
	return scanVersion(row)
}

// DeleteRule removes the rule; owned templates, lines and conditions go via
// ON DELETE CASCADE. Version history is intentionally retained.
func (r *txRepository) DeleteRule(ctx context.Context, id uuid.UUID) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM accounting_rules WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}
