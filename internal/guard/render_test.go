package guard

import "testing"

func TestRenderAllowStatic(t *testing.T) {
	res := Evaluate(NewPermissionSet([]string{"org:read", "org:write"}), Request{Required: []string{"org:read"}}, nil)
	body, rendered := Render(res, StaticContent("secret dashboard"), NoFallback())
	if !rendered || body != "secret dashboard" {
		t.Fatalf("expected static content, got %q rendered=%v", body, rendered)
	}
}

func TestRenderAllowDynamicReceivesResult(t *testing.T) {
	var got Result
	content := DynamicContent(func(r Result) string {
		got = r
		return "dynamic"
	})
	res := Evaluate(NewPermissionSet([]string{"org:read"}), Request{Required: []string{"org:read"}}, fakePrincipal{super: true})
	body, rendered := Render(res, content, NoFallback())
	if !rendered || body != "dynamic" {
		t.Fatalf("expected dynamic content, got %q", body)
	}
	if !got.HasAccess || !got.HasSuperuser {
		t.Fatalf("callback received wrong result: %+v", got)
	}
}

func TestRenderDenyNoFallback(t *testing.T) {
	res := Evaluate(NewPermissionSet([]string{"org:read"}), Request{Required: []string{"org:read", "org:admin"}}, nil)
	body, rendered := Render(res, StaticContent("secret"), NoFallback())
	if rendered || body != "" {
		t.Fatalf("deny with no fallback must render nothing, got %q rendered=%v", body, rendered)
	}
	// Zero-value fallback behaves the same.
	body, rendered = Render(res, StaticContent("secret"), Fallback{})
	if rendered || body != "" {
		t.Fatalf("zero fallback must render nothing")
	}
}

func TestRenderDenyMessageFallback(t *testing.T) {
	// Superuser gate denial with the default message: empty required,
	// superuser demanded, plain user.
	res := Evaluate(nil, Request{RequireSuperuser: true}, fakePrincipal{})
	body, rendered := Render(res, StaticContent("secret"), MessageFallback())
	if !rendered || body != DeniedMessage {
		t.Fatalf("expected denied message, got %q", body)
	}
}

func TestRenderDenyDynamicFallbackReceivesResult(t *testing.T) {
	var got Result
	fb := DynamicFallback(func(r Result) string {
		got = r
		return "ask your admin"
	})
	res := Evaluate(nil, Request{Required: []string{"org:read"}}, nil)
	body, rendered := Render(res, StaticContent("secret"), fb)
	if !rendered || body != "ask your admin" {
		t.Fatalf("expected fallback body, got %q", body)
	}
	if got.HasAccess || got.HasSuperuser {
		t.Fatalf("fallback received wrong result: %+v", got)
	}
}

func TestRenderDenyNilDynamicFallback(t *testing.T) {
	res := Result{}
	body, rendered := Render(res, StaticContent("secret"), DynamicFallback(nil))
	if rendered || body != "" {
		t.Fatalf("nil fallback fn must degrade to rendering nothing")
	}
}
