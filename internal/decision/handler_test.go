package decision_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/guardpost/guardpost/internal/decision"
	"github.com/guardpost/guardpost/internal/guard"
	_ "github.com/guardpost/guardpost/testing"
)

type mapGrantSource map[string][]string

func (m mapGrantSource) Grants(ctx context.Context, orgSlug string) (guard.PermissionSet, error) {
	return guard.NewPermissionSet(m[orgSlug]), nil
}

type stubPrincipals struct {
	principal guard.Principal
}

func (s stubPrincipals) Principal(ctx context.Context, userID int64) (guard.Principal, guard.PermissionSet, error) {
	return s.principal, nil, nil
}

type evaluateResponse struct {
	HasAccess    bool   `json:"has_access"`
	HasSuperuser bool   `json:"has_superuser"`
	ShouldRender bool   `json:"should_render"`
	Rendered     bool   `json:"rendered"`
	Body         string `json:"body"`
}

func newDecisionRouter(t *testing.T, grants mapGrantSource) http.Handler {
	t.Helper()
	handler := decision.NewHandler(nil, grants, stubPrincipals{}, nil, nil, nil, guard.Middleware{Source: stubPrincipals{}})
	r := chi.NewRouter()
	r.Route("/v1/decisions", handler.MountRoutes)
	return r
}

func evaluate(t *testing.T, router http.Handler, body string) (int, evaluateResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/decisions/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	var resp evaluateResponse
	if res.Code == http.StatusOK {
		if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return res.Code, resp
}

func TestEvaluateSingleGrantedPermission(t *testing.T) {
	router := newDecisionRouter(t, mapGrantSource{"acme": {"billing.view", "reports.view"}})

	code, resp := evaluate(t, router, `{"org":"acme","required":["billing.view"],"content":"<Dashboard/>"}`)
	if code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", code)
	}
	if !resp.HasAccess || !resp.ShouldRender || !resp.Rendered {
		t.Fatalf("expected granted decision, got %+v", resp)
	}
	if resp.Body != "<Dashboard/>" {
		t.Fatalf("expected content body, got %q", resp.Body)
	}
}

func TestEvaluateAllModeMissingPermission(t *testing.T) {
	router := newDecisionRouter(t, mapGrantSource{"acme": {"billing.view"}})

	code, resp := evaluate(t, router, `{"org":"acme","required":["billing.view","billing.edit"],"mode":"all","content":"x","fallback":"none"}`)
	if code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", code)
	}
	if resp.HasAccess || resp.ShouldRender || resp.Rendered {
		t.Fatalf("expected denied decision, got %+v", resp)
	}
	if resp.Body != "" {
		t.Fatalf("expected empty body, got %q", resp.Body)
	}
}

func TestEvaluateAnyModePartialGrant(t *testing.T) {
	router := newDecisionRouter(t, mapGrantSource{"acme": {"billing.view"}})

	code, resp := evaluate(t, router, `{"org":"acme","required":["billing.view","billing.edit"],"mode":"any","content":"x"}`)
	if code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", code)
	}
	if !resp.HasAccess || !resp.Rendered {
		t.Fatalf("expected granted decision, got %+v", resp)
	}
}

func TestEvaluateDeniedWithMessageFallback(t *testing.T) {
	router := newDecisionRouter(t, mapGrantSource{"acme": {"reports.view"}})

	code, resp := evaluate(t, router, `{"org":"acme","required":["billing.edit"],"content":"x","fallback":"message"}`)
	if code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", code)
	}
	if resp.HasAccess {
		t.Fatalf("expected denial, got %+v", resp)
	}
	if !resp.Rendered || resp.Body != guard.DeniedMessage {
		t.Fatalf("expected denied message fallback, got %+v", resp)
	}
}

func TestEvaluateDeniedWithEchoFallback(t *testing.T) {
	router := newDecisionRouter(t, mapGrantSource{"acme": {"reports.view"}})

	code, resp := evaluate(t, router, `{"org":"acme","required":["billing.edit"],"content":"x","fallback":"echo"}`)
	if code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", code)
	}
	if resp.HasAccess || resp.ShouldRender {
		t.Fatalf("expected denial, got %+v", resp)
	}
	if !resp.Rendered || resp.Body != "access denied (has_access=false, has_superuser=false)" {
		t.Fatalf("expected echoed denial, got %+v", resp)
	}
}

func TestEvaluateEchoFallbackIgnoredOnAllow(t *testing.T) {
	router := newDecisionRouter(t, mapGrantSource{"acme": {"billing.view"}})

	code, resp := evaluate(t, router, `{"org":"acme","required":["billing.view"],"content":"ok","fallback":"echo"}`)
	if code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", code)
	}
	if !resp.Rendered || resp.Body != "ok" {
		t.Fatalf("expected content body, got %+v", resp)
	}
}

func TestEvaluateUnknownOrgHasNoPermissions(t *testing.T) {
	router := newDecisionRouter(t, mapGrantSource{})

	code, resp := evaluate(t, router, `{"org":"ghost","required":["billing.view"],"content":"x"}`)
	if code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", code)
	}
	if resp.HasAccess || resp.Rendered {
		t.Fatalf("expected denial for unknown org, got %+v", resp)
	}
}

func TestEvaluateEmptyRequiredAlwaysRenders(t *testing.T) {
	router := newDecisionRouter(t, mapGrantSource{})

	code, resp := evaluate(t, router, `{"org":"ghost","content":"open"}`)
	if code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", code)
	}
	if !resp.HasAccess || !resp.ShouldRender || resp.Body != "open" {
		t.Fatalf("expected unconditional render, got %+v", resp)
	}
}

func TestEvaluateSuperuserGateBlocksAnonymous(t *testing.T) {
	router := newDecisionRouter(t, mapGrantSource{"acme": {"billing.view"}})

	code, resp := evaluate(t, router, `{"org":"acme","required":["billing.view"],"require_superuser":true,"content":"x"}`)
	if code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", code)
	}
	if !resp.HasAccess {
		t.Fatalf("expected permission check to pass, got %+v", resp)
	}
	if resp.HasSuperuser || resp.ShouldRender || resp.Rendered {
		t.Fatalf("expected superuser gate to block, got %+v", resp)
	}
}

func TestEvaluateRejectsBadMode(t *testing.T) {
	router := newDecisionRouter(t, mapGrantSource{})

	code, _ := evaluate(t, router, `{"org":"acme","mode":"sometimes"}`)
	if code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", code)
	}
}

func TestEvaluateRejectsMalformedBody(t *testing.T) {
	router := newDecisionRouter(t, mapGrantSource{})

	code, _ := evaluate(t, router, `{"org":`)
	if code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", code)
	}
}
