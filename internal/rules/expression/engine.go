// Package expression implements the arithmetic expression language used by
// accounting rule entry templates. Expressions reference typed variables by
// name and are evaluated with decimal arithmetic.
package expression

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Type enumerates variable types available to expressions.
type Type string

const (
	TypeMoney   Type = "MONEY"
	TypeDecimal Type = "DECIMAL"
	TypeBoolean Type = "BOOLEAN"
	TypeString  Type = "STRING"
)

// KnownType reports whether t is one of the declared variable types.
func KnownType(t Type) bool {
	switch t {
	case TypeMoney, TypeDecimal, TypeBoolean, TypeString:
		return true
	}
	return false
}

// DivisionScale is the fixed number of fractional digits produced by the
// division operator. Changing it silently alters every stored rule's output.
const DivisionScale = 10

var identPattern = regexp.MustCompile(`[a-z][a-z0-9_.]*`)

var keywords = map[string]struct{}{
	"true":  {},
	"false": {},
	"null":  {},
}

// ParseError describes a syntax violation at a given position.
type ParseError struct {
	Position int
	Message  string
	Expected string
}

func (e *ParseError) Error() string {
	if e.Expected != "" {
		return fmt.Sprintf("expression: %s at position %d (expected: %s)", e.Message, e.Position, e.Expected)
	}
	return fmt.Sprintf("expression: %s at position %d", e.Message, e.Position)
}

// ValidationResult reports the outcome of Validate.
type ValidationResult struct {
	Valid      bool     `json:"valid"`
	ParsedType Type     `json:"parsedType,omitempty"`
	Errors     []string `json:"errors,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// ExtractVariables scans expr left to right and returns the distinct
// identifier tokens in order of first appearance. Keywords are excluded.
func ExtractVariables(expr string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range identPattern.FindAllString(expr, -1) {
		if _, kw := keywords[tok]; kw {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// Validate checks expr against the variable schema. Unknown variables are
// warnings, syntax violations are errors.
func Validate(expr string, schema map[string]Type) ValidationResult {
	if strings.TrimSpace(expr) == "" {
		return ValidationResult{Valid: false, Errors: []string{"expression must not be blank"}}
	}

	result := ValidationResult{Valid: true}
	vars := ExtractVariables(expr)
	for _, name := range vars {
		if _, ok := schema[name]; !ok {
			result.Warnings = append(result.Warnings, fmt.Sprintf("variable %q is not declared in the template schema", name))
		}
	}
	result.ParsedType = inferType(vars, schema)

	if err := checkSyntax(expr); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
	}
	return result
}

// inferType resolves the result type of an expression: MONEY dominates,
// otherwise any variable reference makes it DECIMAL, and a pure-literal
// expression defaults to DECIMAL.
func inferType(vars []string, schema map[string]Type) Type {
	for _, name := range vars {
		if schema[name] == TypeMoney {
			return TypeMoney
		}
	}
	return TypeDecimal
}

func isOperator(c byte) bool {
	return c == '+' || c == '-' || c == '*' || c == '/'
}

func checkSyntax(expr string) *ParseError {
	depth := 0
	expectOperand := true
	lastOperator := -1
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t':
			continue
		case c == '(':
			depth++
			expectOperand = true
			lastOperator = -1
		case c == ')':
			depth--
			if depth < 0 {
				return &ParseError{Position: i, Message: "unmatched closing parenthesis"}
			}
			if expectOperand {
				return &ParseError{Position: i, Message: "empty group", Expected: "operand"}
			}
			expectOperand = false
			lastOperator = -1
		case isOperator(c):
			if expectOperand {
				// A minus sign may introduce a negative operand.
				if c != '-' {
					return &ParseError{Position: i, Message: fmt.Sprintf("operator %q may not follow another operator", c), Expected: "operand"}
				}
			}
			expectOperand = true
			lastOperator = i
		default:
			expectOperand = false
			lastOperator = -1
		}
	}
	if depth != 0 {
		return &ParseError{Position: len(expr) - 1, Message: "unbalanced parentheses"}
	}
	if lastOperator >= 0 {
		return &ParseError{Position: lastOperator, Message: "expression may not end with an operator", Expected: "operand"}
	}
	return nil
}

// Evaluate substitutes the supplied variable values into expr and evaluates
// the resulting numeric text.
//
// Operators are applied strictly in the order they are encountered; there is
// no multiplication/division precedence. Existing rules depend on that
// behaviour, so it must not be "fixed".
func Evaluate(expr string, values map[string]decimal.Decimal) (decimal.Decimal, error) {
	if strings.TrimSpace(expr) == "" {
		return decimal.Zero, &ParseError{Position: 0, Message: "expression must not be blank"}
	}
	text := substitute(expr, values)
	pos := 0
	result, err := scan(text, &pos)
	if err != nil {
		return decimal.Zero, err
	}
	if pos < len(text) {
		return decimal.Zero, &ParseError{Position: pos, Message: "unexpected trailing input"}
	}
	return result, nil
}

// substitute replaces variable names with their values, longest name first
// so that one variable name being a prefix of another cannot corrupt the
// replacement.
func substitute(expr string, values map[string]decimal.Decimal) string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	out := expr
	for _, name := range names {
		out = strings.ReplaceAll(out, name, values[name].String())
	}
	return out
}

// scan evaluates purely numeric text with a running accumulator and a
// pending operator, recursing for parenthesized groups.
func scan(text string, pos *int) (decimal.Decimal, error) {
	acc := decimal.Zero
	pending := byte('+')
	expectOperand := true
	for *pos < len(text) {
		c := text[*pos]
		switch {
		case c == ' ' || c == '\t':
			*pos++
		case c == '(':
			*pos++
			group, err := scan(text, pos)
			if err != nil {
				return decimal.Zero, err
			}
			if *pos >= len(text) || text[*pos] != ')' {
				return decimal.Zero, &ParseError{Position: *pos, Message: "unbalanced parentheses"}
			}
			*pos++
			acc, err = apply(acc, pending, group)
			if err != nil {
				return decimal.Zero, err
			}
			expectOperand = false
		case c == ')':
			if expectOperand {
				return decimal.Zero, &ParseError{Position: *pos, Message: "empty group", Expected: "operand"}
			}
			return acc, nil
		case isOperator(c) && !(c == '-' && expectOperand):
			pending = c
			expectOperand = true
			*pos++
		default:
			num, err := scanNumber(text, pos)
			if err != nil {
				return decimal.Zero, err
			}
			acc, err = apply(acc, pending, num)
			if err != nil {
				return decimal.Zero, err
			}
			expectOperand = false
		}
	}
	if expectOperand {
		return decimal.Zero, &ParseError{Position: len(text) - 1, Message: "expression may not end with an operator", Expected: "operand"}
	}
	return acc, nil
}

func scanNumber(text string, pos *int) (decimal.Decimal, error) {
	start := *pos
	i := *pos
	if i < len(text) && text[i] == '-' {
		i++
	}
	for i < len(text) && (text[i] >= '0' && text[i] <= '9' || text[i] == '.') {
		i++
	}
	if i == start || (i == start+1 && text[start] == '-') {
		return decimal.Zero, &ParseError{Position: start, Message: fmt.Sprintf("unexpected character %q", text[start]), Expected: "operand"}
	}
	value, err := decimal.NewFromString(text[start:i])
	if err != nil {
		return decimal.Zero, &ParseError{Position: start, Message: fmt.Sprintf("invalid number %q", text[start:i])}
	}
	*pos = i
	return value, nil
}

func apply(acc decimal.Decimal, op byte, operand decimal.Decimal) (decimal.Decimal, error) {
	switch op {
	case '+':
		return acc.Add(operand), nil
	case '-':
		return acc.Sub(operand), nil
	case '*':
		return acc.Mul(operand), nil
	case '/':
		if operand.IsZero() {
			return decimal.Zero, fmt.Errorf("expression: division by zero")
		}
		return acc.DivRound(operand, DivisionScale), nil
	}
	return decimal.Zero, fmt.Errorf("expression: unknown operator %q", op)
}
