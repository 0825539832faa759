package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugogu/financial-journal-maker-sub000/internal/observability"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	svc, _, _ := newTestService(t)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	handler := NewHandler(nil, svc, NewReferenceIndex(client), observability.NewMetrics())

	r := chi.NewRouter()
	r.Route("/rules", handler.MountRoutes)
	handler.MountToolRoutes(r)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func createRulePayload(code string) map[string]any {
	return map[string]any{
		"code": code,
		"name": "Sales invoice posting",
		"template": map[string]any{
			"variables": []map[string]any{
				{"name": "amount", "type": "MONEY", "currency": "USD"},
			},
			"lines": []map[string]any{
				{"accountCode": "accounts-receivable", "entryType": "DEBIT", "amountExpression": "amount"},
				{"accountCode": "sales-revenue", "entryType": "CREDIT", "amountExpression": "amount"},
			},
		},
	}
}

func createRuleViaAPI(t *testing.T, router http.Handler, code string) AccountingRule {
	t.Helper()
	rr := doJSON(t, router, http.MethodPost, "/rules", createRulePayload(code))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var rule AccountingRule
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rule))
	return rule
}

func TestCreateAndGetRule(t *testing.T) {
	router := newTestRouter(t)
	rule := createRuleViaAPI(t, router, "RULE-HTTP-001")

	rr := doJSON(t, router, http.MethodGet, "/rules/"+rule.ID.String(), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var detail RuleDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &detail))
	assert.Equal(t, "RULE-HTTP-001", detail.Rule.Code)
	assert.Len(t, detail.Template.Lines, 2)
}

func TestCreateDuplicateCodeConflicts(t *testing.T) {
	router := newTestRouter(t)
	createRuleViaAPI(t, router, "RULE-HTTP-001")

	rr := doJSON(t, router, http.MethodPost, "/rules", createRulePayload("RULE-HTTP-001"))
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestCreateMissingCodeRejected(t *testing.T) {
	router := newTestRouter(t)
	payload := createRulePayload("")
	delete(payload, "code")

	rr := doJSON(t, router, http.MethodPost, "/rules", payload)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMalformedRuleID(t *testing.T) {
	router := newTestRouter(t)
	rr := doJSON(t, router, http.MethodGet, "/rules/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetUnknownRule(t *testing.T) {
	router := newTestRouter(t)
	rr := doJSON(t, router, http.MethodGet, "/rules/00000000-0000-0000-0000-000000000001", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUpdateAfterActivateIsUnprocessable(t *testing.T) {
	router := newTestRouter(t)
	rule := createRuleViaAPI(t, router, "RULE-HTTP-001")

	rr := doJSON(t, router, http.MethodPost, fmt.Sprintf("/rules/%s/activate", rule.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = doJSON(t, router, http.MethodPut, "/rules/"+rule.ID.String(), map[string]any{
		"name":             "Renamed",
		"concurrencyToken": rule.ConcurrencyToken + 1,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestStaleTokenUpdateConflicts(t *testing.T) {
	router := newTestRouter(t)
	rule := createRuleViaAPI(t, router, "RULE-HTTP-001")

	rr := doJSON(t, router, http.MethodPut, "/rules/"+rule.ID.String(), map[string]any{
		"name":             "Renamed",
		"concurrencyToken": rule.ConcurrencyToken + 7,
	})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestSimulateEndpoint(t *testing.T) {
	router := newTestRouter(t)
	rule := createRuleViaAPI(t, router, "RULE-HTTP-001")

	rr := doJSON(t, router, http.MethodPost, fmt.Sprintf("/rules/%s/simulate", rule.ID), map[string]any{
		"eventData": map[string]any{"amount": 99.5},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var result SimulationResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.True(t, result.Fired)
	assert.True(t, result.Balanced)
	assert.Len(t, result.Entries, 2)
}

func TestGenerateScriptEndpoint(t *testing.T) {
	router := newTestRouter(t)
	rule := createRuleViaAPI(t, router, "RULE-HTTP-001")

	rr := doJSON(t, router, http.MethodGet, fmt.Sprintf("/rules/%s/script", rule.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		OK     bool   `json:"ok"`
		Script string `json:"script"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.OK)
	assert.Contains(t, body.Script, "send [")
}

func TestReferenceEndpoints(t *testing.T) {
	router := newTestRouter(t)
	rule := createRuleViaAPI(t, router, "RULE-HTTP-001")
	path := fmt.Sprintf("/rules/%s/references", rule.ID)

	rr := doJSON(t, router, http.MethodPost, path, map[string]any{"scenarioId": "scenario-a"})
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = doJSON(t, router, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Scenarios []string `json:"scenarios"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, []string{"scenario-a"}, body.Scenarios)

	rr = doJSON(t, router, http.MethodDelete, path, map[string]any{"scenarioId": "scenario-a"})
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestValidateExpressionTool(t *testing.T) {
	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/expressions/validate", map[string]any{
		"expression": "amount * rate",
		"variables": []map[string]any{
			{"name": "amount", "type": "MONEY"},
			{"name": "rate", "type": "DECIMAL"},
		},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Valid      bool   `json:"valid"`
		ParsedType string `json:"parsedType"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.Valid)
	assert.Equal(t, "MONEY", body.ParsedType)
}

func TestValidateScriptTool(t *testing.T) {
	router := newTestRouter(t)

	rr := doJSON(t, router, http.MethodPost, "/numscript/validate", map[string]any{
		"script": "vars {\n  monetary $amount\n}\n\nsend [\n  $amount\n] (\n  source = {\n    @accounts:revenue\n  }\n  destination = {\n    @accounts:cash\n  }\n)\n",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Valid bool `json:"valid"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.Valid)
}
