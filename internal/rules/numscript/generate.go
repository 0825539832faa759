// Package numscript generates and statically validates the ledger-transfer
// scripts produced from accounting rule entry templates.
package numscript

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/hugogu/financial-journal-maker-sub000/internal/rules/expression"
)

// accountNamespace prefixes every generated account path.
const accountNamespace = "accounts"

// LineType mirrors the entry template's debit/credit marker.
type LineType string

const (
	LineDebit  LineType = "DEBIT"
	LineCredit LineType = "CREDIT"
)

// Variable is one schema declaration emitted into the vars block.
type Variable struct {
	Name string
	Type expression.Type
}

// Line is one entry-template line feeding the send block.
type Line struct {
	AccountCode      string
	Type             LineType
	AmountExpression string
}

// Input is the template projection the generator consumes.
type Input struct {
	Variables []Variable
	Lines     []Line
}

// GenerateResult bundles the produced script with the validator's verdict on
// it.
type GenerateResult struct {
	OK         bool              `json:"ok"`
	Script     string            `json:"script,omitempty"`
	Error      string            `json:"error,omitempty"`
	Validation *ValidationResult `json:"validation,omitempty"`
}

var scriptTypes = map[expression.Type]string{
	expression.TypeMoney:   "monetary",
	expression.TypeDecimal: "number",
	expression.TypeBoolean: "boolean",
	expression.TypeString:  "string",
}

// Generate renders the script for a template and immediately re-checks its
// own output with Validate.
func Generate(in Input) GenerateResult {
	if len(in.Lines) == 0 {
		return GenerateResult{Error: "entry template must contain at least one line"}
	}

	var debits, credits []Line
	for _, line := range in.Lines {
		switch line.Type {
		case LineDebit:
			debits = append(debits, line)
		case LineCredit:
			credits = append(credits, line)
		}
	}
	if len(debits) == 0 || len(credits) == 0 {
		return GenerateResult{Error: "entry template must have at least one debit and one credit line"}
	}

	var b strings.Builder
	if len(in.Variables) > 0 {
		b.WriteString("vars {\n")
		for _, v := range in.Variables {
			scriptType, ok := scriptTypes[v.Type]
			if !ok {
				return GenerateResult{Error: fmt.Sprintf("variable %q has unsupported type %q", v.Name, v.Type)}
			}
			fmt.Fprintf(&b, "  %s $%s\n", scriptType, scriptVariableName(v.Name))
		}
		b.WriteString("}\n\n")
	}

	b.WriteString("send [\n")
	for _, line := range debits {
		fmt.Fprintf(&b, "  %s\n", translateExpression(line.AmountExpression))
	}
	b.WriteString("] (\n")
	// The ledger's source group carries the CREDIT accounts and the
	// destination group the DEBIT accounts. Inverted relative to the usual
	// accounting wording, but existing consumers depend on it.
	b.WriteString("  source = {\n")
	for _, line := range credits {
		fmt.Fprintf(&b, "    @%s\n", accountPath(line.AccountCode))
	}
	b.WriteString("  }\n")
	b.WriteString("  destination = {\n")
	for _, line := range debits {
		fmt.Fprintf(&b, "    @%s\n", accountPath(line.AccountCode))
	}
	b.WriteString("  }\n")
	b.WriteString(")\n")

	script := b.String()
	validation := Validate(script)
	return GenerateResult{OK: true, Script: script, Validation: &validation}
}

// scriptVariableName maps a template variable name onto the script's
// identifier form: dots become underscores.
func scriptVariableName(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}

var numericSigil = regexp.MustCompile(`\$(\d+(?:\.\d+)?)`)

// translateExpression rewrites template variable references into
// sigil-prefixed script names, then strips any sigil that landed on a pure
// numeric token.
func translateExpression(expr string) string {
	names := expression.ExtractVariables(expr)
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	out := expr
	for _, name := range names {
		out = strings.ReplaceAll(out, name, "$"+scriptVariableName(name))
	}
	return numericSigil.ReplaceAllString(out, "$1")
}

// accountPath maps an account code onto a script account reference.
func accountPath(code string) string {
	normalized := strings.ReplaceAll(strings.ToLower(code), "-", "_")
	return accountNamespace + ":" + normalized
}
