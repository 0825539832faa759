package condition

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Condition pairs a tree with the free-text description shown in failure
// reasons.
type Condition struct {
	Description string
	Root        Node
}

// Result reports the outcome of evaluating one or more conditions.
type Result struct {
	Matched bool   `json:"matched"`
	Reason  string `json:"reason,omitempty"`
}

// EvaluateAll ANDs the given conditions against the event payload. An empty
// list matches unconditionally. Evaluation stops at the first condition that
// fails and returns its description as the reason.
func EvaluateAll(conditions []Condition, event map[string]any) Result {
	for _, cond := range conditions {
		if Evaluate(cond.Root, event) {
			continue
		}
		reason := cond.Description
		if reason == "" {
			reason = "trigger condition not satisfied"
		}
		return Result{Matched: false, Reason: reason}
	}
	return Result{Matched: true}
}

// Evaluate walks the tree against the event payload.
func Evaluate(node Node, event map[string]any) bool {
	switch n := node.(type) {
	case Simple:
		return evaluateSimple(n, event)
	case And:
		for _, child := range n.Children {
			if !Evaluate(child, event) {
				return false
			}
		}
		return true
	case Or:
		for _, child := range n.Children {
			if Evaluate(child, event) {
				return true
			}
		}
		return false
	}
	return false
}

func evaluateSimple(node Simple, event map[string]any) bool {
	actual := Resolve(node.Field, event)
	if actual == nil && node.Operator != OpNotEquals && node.Operator != OpNotIn {
		return false
	}
	switch node.Operator {
	case OpEquals:
		return equalValues(actual, node.Value)
	case OpNotEquals:
		if actual == nil {
			return node.Value != nil
		}
		return !equalValues(actual, node.Value)
	case OpGreaterThan:
		cmp, ok := compareValues(actual, node.Value)
		return ok && cmp > 0
	case OpGreaterThanOrEquals:
		cmp, ok := compareValues(actual, node.Value)
		return ok && cmp >= 0
	case OpLessThan:
		cmp, ok := compareValues(actual, node.Value)
		return ok && cmp < 0
	case OpLessThanOrEquals:
		cmp, ok := compareValues(actual, node.Value)
		return ok && cmp <= 0
	case OpContains:
		return strings.Contains(stringify(actual), stringify(node.Value))
	case OpMatches:
		matched, err := regexp.MatchString("^(?:"+stringify(node.Value)+")$", stringify(actual))
		return err == nil && matched
	case OpIn:
		return memberOf(actual, node.Value)
	case OpNotIn:
		return !memberOf(actual, node.Value)
	}
	return false
}

// Resolve walks a dotted path through nested string-keyed maps. A missing
// segment or a non-map intermediate yields nil.
func Resolve(path string, event map[string]any) any {
	if event == nil {
		return nil
	}
	segments := strings.Split(path, ".")
	var current any = event
	for _, segment := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[segment]
		if !ok {
			return nil
		}
	}
	return current
}

func memberOf(actual, expected any) bool {
	list, ok := expected.([]any)
	if !ok {
		return false
	}
	if actual == nil {
		return false
	}
	for _, item := range list {
		if equalValues(actual, item) {
			return true
		}
	}
	return false
}

// equalValues compares numerically when both sides parse as decimals,
// otherwise by string representation.
func equalValues(a, b any) bool {
	da, aok := toDecimal(a)
	db, bok := toDecimal(b)
	if aok && bok {
		return da.Equal(db)
	}
	return stringify(a) == stringify(b)
}

func compareValues(a, b any) (int, bool) {
	da, aok := toDecimal(a)
	db, bok := toDecimal(b)
	if aok && bok {
		return da.Cmp(db), true
	}
	return strings.Compare(stringify(a), stringify(b)), true
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
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
	default:
		return decimal.Decimal{}, false
	}
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
