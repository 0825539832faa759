package numscript

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationResult reports errors (script unusable) and warnings (style or
// suspicious references).
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

var (
	sendBlockPattern = regexp.MustCompile(`(?s)send\s*\[.*?\]\s*\(`)
	varsBlockPattern = regexp.MustCompile(`(?s)vars\s*\{(.*?)\}`)
	declPattern      = regexp.MustCompile(`(?m)^\s*([a-z]+)\s+\$([a-z][a-z0-9_]*)\s*$`)
	referencePattern = regexp.MustCompile(`\$[a-z][a-z0-9_]*`)
	accountPattern   = regexp.MustCompile(`@([A-Za-z0-9_:-]*)`)
)

var declaredTypes = map[string]struct{}{
	"monetary": {},
	"number":   {},
	"boolean":  {},
	"string":   {},
}

// reservedAccounts are script accounts that never appear in a chart of
// accounts.
var reservedAccounts = map[string]struct{}{
	"world": {},
}

// Validate performs the structural, variable, account, and style passes over
// a script. It is a lexical checker, not a parser.
func Validate(script string) ValidationResult {
	result := ValidationResult{Valid: true}
	if strings.TrimSpace(script) == "" {
		return ValidationResult{Valid: false, Errors: []string{"script is empty"}}
	}

	if !sendBlockPattern.MatchString(script) {
		result.Errors = append(result.Errors, "script must contain at least one send [...] (...) block")
	}
	for _, pair := range []struct {
		open, close string
		name        string
	}{
		{"{", "}", "curly braces"},
		{"(", ")", "parentheses"},
		{"[", "]", "square brackets"},
	} {
		if strings.Count(script, pair.open) != strings.Count(script, pair.close) {
			result.Errors = append(result.Errors, "unbalanced "+pair.name)
		}
	}
	if len(result.Errors) > 0 {
		result.Valid = false
		return result
	}

	checkVariables(script, &result)
	checkAccounts(script, &result)
	checkStyle(script, &result)

	result.Valid = len(result.Errors) == 0
	return result
}

// ValidateWithAccounts additionally cross-checks account references against
// a caller-supplied allow-list of account codes. References outside the
// reserved set and the allow-list are warnings, never errors: the chart of
// accounts is owned elsewhere.
func ValidateWithAccounts(script string, allowed []string) ValidationResult {
	result := Validate(script)
	if !result.Valid {
		return result
	}
	allowedPaths := make(map[string]struct{}, len(allowed))
	for _, code := range allowed {
		allowedPaths[accountPath(code)] = struct{}{}
		allowedPaths[code] = struct{}{}
	}
	for _, match := range accountPattern.FindAllStringSubmatch(script, -1) {
		path := match[1]
		if _, ok := reservedAccounts[path]; ok {
			continue
		}
		if _, ok := allowedPaths[path]; ok {
			continue
		}
		result.Warnings = append(result.Warnings, fmt.Sprintf("account %q is not in the provided account list", path))
	}
	return result
}

func checkVariables(script string, result *ValidationResult) {
	varsBlock := ""
	if m := varsBlockPattern.FindStringSubmatch(script); m != nil {
		varsBlock = m[1]
	}

	declared := make(map[string]struct{})
	for _, decl := range declPattern.FindAllStringSubmatch(varsBlock, -1) {
		declType, name := decl[1], decl[2]
		if _, ok := declaredTypes[declType]; !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("unknown variable type %q for $%s", declType, name))
			continue
		}
		if _, dup := declared[name]; dup {
			result.Errors = append(result.Errors, fmt.Sprintf("variable $%s declared more than once", name))
			continue
		}
		declared[name] = struct{}{}
	}

	for _, ref := range referencePattern.FindAllString(script, -1) {
		name := strings.TrimPrefix(ref, "$")
		if _, ok := declared[name]; ok {
			continue
		}
		if strings.Contains(varsBlock, ref) {
			continue
		}
		result.Warnings = append(result.Warnings, fmt.Sprintf("variable %s is referenced but never declared", ref))
	}
}

func checkAccounts(script string, result *ValidationResult) {
	for _, match := range accountPattern.FindAllStringSubmatch(script, -1) {
		path := match[1]
		if path == "" {
			result.Errors = append(result.Errors, "account reference with empty path")
			continue
		}
		for _, segment := range strings.Split(path, ":") {
			if segment == "" {
				result.Errors = append(result.Errors, fmt.Sprintf("account @%s has an empty path component", path))
				break
			}
		}
	}
}

func checkStyle(script string, result *ValidationResult) {
	for i, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		if strings.Contains(trimmed, "  ") {
			result.Warnings = append(result.Warnings, fmt.Sprintf("line %d: multiple consecutive spaces", i+1))
		}
	}
}
