package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/hugogu/financial-journal-maker-sub000/internal/rules/condition"
	"github.com/hugogu/financial-journal-maker-sub000/internal/rules/expression"
)

// SimulatedEntry is one dry-run leg.
type SimulatedEntry struct {
	SequenceNumber int             `json:"sequenceNumber"`
	AccountCode    string          `json:"accountCode"`
	EntryType      EntryType       `json:"entryType"`
	Amount         decimal.Decimal `json:"amount"`
	Memo           string          `json:"memo,omitempty"`
}

// SimulationResult is the outcome of firing a rule against sample event
// data without persisting anything.
type SimulationResult struct {
	Fired        bool             `json:"fired"`
	Reason       string           `json:"reason,omitempty"`
	Entries      []SimulatedEntry `json:"entries,omitempty"`
	TotalDebits  decimal.Decimal  `json:"totalDebits"`
	TotalCredits decimal.Decimal  `json:"totalCredits"`
	Balanced     bool             `json:"balanced"`
	Warnings     []string         `json:"warnings,omitempty"`
}

// Simulate dry-runs a rule against the supplied event payload. Trigger
// conditions gate firing; amount expressions that fail to evaluate degrade
// to zero with a warning because a partial preview is more useful than a
// hard failure.
func (s *Service) Simulate(ctx context.Context, id uuid.UUID, event map[string]any) (SimulationResult, error) {
	if _, err := s.repo.GetRule(ctx, id); err != nil {
		return SimulationResult{}, err
	}
	template, err := s.repo.GetEntryTemplate(ctx, id)
	if err != nil {
		return SimulationResult{}, err
	}
	conditions, err := s.repo.GetTriggerConditions(ctx, id)
	if err != nil {
		return SimulationResult{}, err
	}
	return s.simulate(id, template, conditions, event), nil
}

// SimulateBatch runs one rule against several event payloads. The engines
// underneath are pure, so the payloads are evaluated concurrently.
func (s *Service) SimulateBatch(ctx context.Context, id uuid.UUID, events []map[string]any) ([]SimulationResult, error) {
	if _, err := s.repo.GetRule(ctx, id); err != nil {
		return nil, err
	}
	template, err := s.repo.GetEntryTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	conditions, err := s.repo.GetTriggerConditions(ctx, id)
	if err != nil {
		return nil, err
	}
	results := make([]SimulationResult, len(events))
	g, _ := errgroup.WithContext(ctx)
	for i, event := range events {
		g.Go(func() error {
			results[i] = s.simulate(id, template, conditions, event)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) simulate(id uuid.UUID, template EntryTemplate, conditions []TriggerCondition, event map[string]any) SimulationResult {
	result := SimulationResult{
		TotalDebits:  decimal.Zero,
		TotalCredits: decimal.Zero,
	}

	if len(conditions) > 0 {
		evaluable := make([]condition.Condition, 0, len(conditions))
		for _, cond := range conditions {
			node, err := cond.Parse()
			if err != nil {
				s.logger.Warn("skipping malformed trigger condition",
					slog.String("rule_id", id.String()),
					slog.String("condition_id", cond.ID.String()),
					slog.Any("error", err))
				continue
			}
			evaluable = append(evaluable, condition.Condition{Description: cond.Description, Root: node})
		}
		outcome := condition.EvaluateAll(evaluable, event)
		if !outcome.Matched {
			result.Reason = outcome.Reason
			if result.Reason == "" {
				result.Reason = "trigger conditions not satisfied"
			}
			result.Balanced = true
			return result
		}
	}

	result.Fired = true
	for _, line := range template.Lines {
		amount, err := evaluateLineAmount(line.AmountExpression, event)
		if err != nil {
			s.logger.Warn("amount expression failed during simulation, using zero",
				slog.String("rule_id", id.String()),
				slog.String("expression", line.AmountExpression),
				slog.Any("error", err))
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("line %d: expression %q could not be evaluated, amount set to 0", line.SequenceNumber, line.AmountExpression))
			amount = decimal.Zero
		}
		entry := SimulatedEntry{
			SequenceNumber: line.SequenceNumber,
			AccountCode:    line.AccountCode,
			EntryType:      line.EntryType,
			Amount:         amount,
			Memo:           resolveMemo(line.MemoTemplate, event),
		}
		result.Entries = append(result.Entries, entry)
		switch line.EntryType {
		case EntryDebit:
			result.TotalDebits = result.TotalDebits.Add(amount)
		case EntryCredit:
			result.TotalCredits = result.TotalCredits.Add(amount)
		}
	}
	result.Balanced = result.TotalDebits.Equal(result.TotalCredits)
	if !result.Balanced {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("simulated entries are not balanced: debits %s, credits %s", result.TotalDebits, result.TotalCredits))
	}
	return result
}

// evaluateLineAmount resolves the expression's variables from the event
// payload and evaluates it.
func evaluateLineAmount(expr string, event map[string]any) (decimal.Decimal, error) {
	values := make(map[string]decimal.Decimal)
	for _, name := range expression.ExtractVariables(expr) {
		raw := condition.Resolve(name, event)
		if raw == nil {
			continue
		}
		value, ok := eventDecimal(raw)
		if !ok {
			return decimal.Zero, fmt.Errorf("rules: event field %q is not numeric", name)
		}
		values[name] = value
	}
	return expression.Evaluate(expr, values)
}

func eventDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	case decimal.Decimal:
		return n, true
	default:
		return decimal.Decimal{}, false
	}
}

// resolveMemo substitutes {field} and ${field} placeholders with stringified
// event values. Nested fields are addressed by their dotted path.
func resolveMemo(memo string, event map[string]any) string {
	if memo == "" {
		return ""
	}
	out := memo
	for key, value := range flattenEvent("", event) {
		text := fmt.Sprintf("%v", value)
		out = strings.ReplaceAll(out, "${"+key+"}", text)
		out = strings.ReplaceAll(out, "{"+key+"}", text)
	}
	return out
}

func flattenEvent(prefix string, event map[string]any) map[string]any {
	flat := make(map[string]any)
	for key, value := range event {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			for k, v := range flattenEvent(path, nested) {
				flat[k] = v
			}
			continue
		}
		flat[path] = value
	}
	return flat
}
