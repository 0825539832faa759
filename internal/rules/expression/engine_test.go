package expression

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractVariablesSkipsKeywordsAndDuplicates(t *testing.T) {
	vars := ExtractVariables("amount * fee.rate + amount - true")
	assert.Equal(t, []string{"amount", "fee.rate"}, vars)
}

func TestExtractVariablesEmptyForLiterals(t *testing.T) {
	assert.Empty(t, ExtractVariables("2 + 3.5 * (4 - 1)"))
}

func TestValidateBlankExpression(t *testing.T) {
	result := Validate("   ", nil)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
}

func TestValidateUnknownVariableIsWarning(t *testing.T) {
	schema := map[string]Type{"amount": TypeMoney}
	result := Validate("amount + bonus", schema)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "bonus")
}

func TestValidateParsedType(t *testing.T) {
	schema := map[string]Type{
		"amount": TypeMoney,
		"rate":   TypeDecimal,
	}
	assert.Equal(t, TypeMoney, Validate("amount * rate", schema).ParsedType)
	assert.Equal(t, TypeDecimal, Validate("rate * 2", schema).ParsedType)
	assert.Equal(t, TypeDecimal, Validate("2 + 3", schema).ParsedType)
}

func TestValidateSyntaxErrors(t *testing.T) {
	cases := []string{
		"amount + * 2",
		"amount +",
		"(amount + 2",
		"amount + 2)",
	}
	for _, expr := range cases {
		result := Validate(expr, nil)
		assert.False(t, result.Valid, "expected %q to be invalid", expr)
		assert.NotEmpty(t, result.Errors)
	}
}

func TestValidateUnaryMinusAllowed(t *testing.T) {
	result := Validate("amount * -2", map[string]Type{"amount": TypeMoney})
	assert.True(t, result.Valid)
}

func TestEvaluateLeftToRight(t *testing.T) {
	// No multiplication precedence: (2 + 3) * 4, not 2 + 12.
	got, err := Evaluate("2 + 3 * 4", nil)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(20)), "got %s", got)
}

func TestEvaluateParenthesesRecurse(t *testing.T) {
	got, err := Evaluate("2 * (3 + 4) - 5", nil)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(9)), "got %s", got)
}

func TestEvaluateDivisionScale(t *testing.T) {
	got, err := Evaluate("10 / 3", nil)
	require.NoError(t, err)
	assert.Equal(t, "3.3333333333", got.String())
	assert.EqualValues(t, -DivisionScale, got.Exponent())
}

func TestEvaluateDivisionByZero(t *testing.T) {
	_, err := Evaluate("1 / 0", nil)
	require.Error(t, err)
}

func TestEvaluateSubstitutesLongestNameFirst(t *testing.T) {
	values := map[string]decimal.Decimal{
		"a":  decimal.NewFromInt(5),
		"ab": decimal.NewFromInt(7),
	}
	got, err := Evaluate("ab", values)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(7)), "got %s", got)
}

func TestEvaluateWithVariables(t *testing.T) {
	values := map[string]decimal.Decimal{
		"amount":   decimal.NewFromInt(100),
		"fee.rate": decimal.RequireFromString("0.05"),
	}
	got, err := Evaluate("amount * fee.rate", values)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(5)), "got %s", got)
}

func TestEvaluateNegativeSubstitution(t *testing.T) {
	values := map[string]decimal.Decimal{"adj": decimal.NewFromInt(-2)}
	got, err := Evaluate("10 - adj", values)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(12)), "got %s", got)
}

func TestEvaluateUnknownVariableFails(t *testing.T) {
	_, err := Evaluate("amount + 1", nil)
	require.Error(t, err)
}

func TestEmptyGroupRejectedByValidateAndEvaluate(t *testing.T) {
	exprs := []string{"()", "2 + ()", "(())", "(2+)"}
	for _, expr := range exprs {
		result := Validate(expr, nil)
		assert.False(t, result.Valid, "expected %q to be invalid", expr)
		assert.NotEmpty(t, result.Errors)
		_, err := Evaluate(expr, nil)
		require.Error(t, err, "evaluate %q", expr)
	}
}

func TestValidLiteralExpressionRoundTrips(t *testing.T) {
	exprs := []string{"1", "2 + 3", "(1 + 2) * 3", "-4 / 2", "10 / 4"}
	for _, expr := range exprs {
		result := Validate(expr, nil)
		require.True(t, result.Valid, "expected %q valid", expr)
		require.Empty(t, ExtractVariables(expr))
		_, err := Evaluate(expr, nil)
		require.NoError(t, err, "evaluate %q", expr)
	}
}
