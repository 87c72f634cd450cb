package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"findr/api/internal/config"
)

func newTestHandler(t *testing.T) (http.Handler, *Service, *fakeStore) {
	t.Helper()
	svc, fs := newTestService(t, config.ClaimPolicyMulti)
	return NewHTTPServer(svc, "*").Handler(), svc, fs
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var payload *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewBuffer(raw)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	decoded := map[string]any{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func httpSignUp(t *testing.T, handler http.Handler, email, name string) map[string]any {
	t.Helper()
	rec, body := doJSON(t, handler, http.MethodPost, "/api/auth/signup", "", map[string]any{
		"email":    email,
		"password": "hunter2hunter2",
		"name":     name,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("sign up %s: status %d body %v", email, rec.Code, body)
	}
	return body
}

func TestHTTPHealthAndSession(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	rec, body := doJSON(t, handler, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK || body["ok"] != true {
		t.Fatalf("health: status %d body %v", rec.Code, body)
	}

	rec, body = doJSON(t, handler, http.MethodGet, "/api/session", "", nil)
	if rec.Code != http.StatusOK || body["authenticated"] != false {
		t.Fatalf("anonymous session: status %d body %v", rec.Code, body)
	}

	signed := httpSignUp(t, handler, "ana@example.com", "Ana")
	token, _ := signed["token"].(string)
	if token == "" {
		t.Fatalf("expected token in sign up response, got %v", signed)
	}

	rec, body = doJSON(t, handler, http.MethodGet, "/api/session", token, nil)
	if rec.Code != http.StatusOK || body["authenticated"] != true || body["userName"] != "Ana" {
		t.Fatalf("session info: status %d body %v", rec.Code, body)
	}
}

func TestHTTPRequiresAuth(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	rec, body := doJSON(t, handler, http.MethodPost, "/api/items", "", map[string]any{"title": "x"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if body["code"] != "UNAUTHORIZED" || body["error"] == nil {
		t.Fatalf("unexpected error envelope: %v", body)
	}

	rec, _ = doJSON(t, handler, http.MethodPost, "/api/items", "not-a-token", map[string]any{"title": "x"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a garbage token, got %d", rec.Code)
	}
}

func TestHTTPItemLifecycle(t *testing.T) {
	handler, _, _ := newTestHandler(t)

	signed := httpSignUp(t, handler, "finn@example.com", "Finn")
	token := signed["token"].(string)

	rec, body := doJSON(t, handler, http.MethodPost, "/api/items", token, map[string]any{
		"type":        "found",
		"title":       "Black umbrella",
		"description": "found near the fountain",
		"category":    "accessories",
		"location":    map[string]any{"name": "Central Park", "lat": 40.78, "lng": -73.96},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("report item: status %d body %v", rec.Code, body)
	}
	itemID := body["id"].(string)

	// Validation problems surface in the details field.
	rec, body = doJSON(t, handler, http.MethodPost, "/api/items", token, map[string]any{"type": "found"})
	if rec.Code != http.StatusUnprocessableEntity || body["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected validation failure, got %d %v", rec.Code, body)
	}
	if body["details"] == nil {
		t.Fatalf("expected details on the validation error, got %v", body)
	}

	rec, body = doJSON(t, handler, http.MethodGet, "/api/items", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("feed: status %d", rec.Code)
	}
	items := body["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 item in the feed, got %d", len(items))
	}
	if items[0].(map[string]any)["canClaim"] != false {
		t.Fatal("anonymous feed must not offer the claim action")
	}

	rec, body = doJSON(t, handler, http.MethodGet, "/api/items/"+itemID, token, nil)
	if rec.Code != http.StatusOK || body["canClaim"] != false {
		t.Fatalf("poster viewing own item: status %d body %v", rec.Code, body)
	}

	rec, body = doJSON(t, handler, http.MethodGet, "/api/items/item_missing", "", nil)
	if rec.Code != http.StatusNotFound || body["code"] != "NOT_FOUND" {
		t.Fatalf("expected 404 envelope, got %d %v", rec.Code, body)
	}
}

func TestHTTPClaimFlow(t *testing.T) {
	handler, _, fs := newTestHandler(t)

	finder := httpSignUp(t, handler, "finn@example.com", "Finn")
	claimant := httpSignUp(t, handler, "vera@example.com", "Vera")
	finderToken := finder["token"].(string)
	claimantToken := claimant["token"].(string)

	_, body := doJSON(t, handler, http.MethodPost, "/api/items", finderToken, map[string]any{
		"type":     "found",
		"title":    "Black umbrella",
		"category": "accessories",
		"location": map[string]any{"name": "Central Park"},
	})
	itemID := body["id"].(string)

	rec, body := doJSON(t, handler, http.MethodPost, "/api/claims", claimantToken, map[string]any{
		"itemId":      itemID,
		"description": "it has my initials on the handle",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit claim: status %d body %v", rec.Code, body)
	}
	claimID := body["id"].(string)

	rec, body = doJSON(t, handler, http.MethodPost, "/api/claims", claimantToken, map[string]any{
		"itemId":      itemID,
		"description": "mine again",
	})
	if rec.Code != http.StatusConflict || body["code"] != "DUPLICATE_CLAIM" {
		t.Fatalf("expected duplicate claim conflict, got %d %v", rec.Code, body)
	}

	// Plain users cannot touch the admin queue.
	rec, body = doJSON(t, handler, http.MethodPost, "/api/admin/claims/"+claimID+"/resolve", claimantToken, map[string]any{"approve": true})
	if rec.Code != http.StatusForbidden || body["code"] != "FORBIDDEN" {
		t.Fatalf("expected 403 for non-admin, got %d %v", rec.Code, body)
	}

	// Promote a user to admin directly in the store; sessions re-read the
	// role on every request.
	adminSigned := httpSignUp(t, handler, "root@example.com", "Root")
	adminID := adminSigned["userId"].(string)
	adminToken := adminSigned["token"].(string)
	admin := fs.users[adminID]
	admin.Role = "admin"
	fs.users[adminID] = admin

	rec, body = doJSON(t, handler, http.MethodGet, "/api/admin/claims", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin queue: status %d body %v", rec.Code, body)
	}
	if len(body["claims"].([]any)) != 1 {
		t.Fatalf("expected 1 queued claim, got %v", body["claims"])
	}

	rec, body = doJSON(t, handler, http.MethodPost, "/api/admin/claims/"+claimID+"/resolve", adminToken, map[string]any{"approve": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve: status %d body %v", rec.Code, body)
	}
	if body["status"] != "approved" {
		t.Fatalf("expected approved claim, got %v", body)
	}

	rec, body = doJSON(t, handler, http.MethodGet, "/api/items/"+itemID, "", nil)
	if rec.Code != http.StatusOK || body["status"] != "returned" {
		t.Fatalf("expected returned item, got %d %v", rec.Code, body)
	}

	rec, body = doJSON(t, handler, http.MethodGet, "/api/me/claims", claimantToken, nil)
	if rec.Code != http.StatusOK || len(body["claims"].([]any)) != 1 {
		t.Fatalf("my claims: status %d body %v", rec.Code, body)
	}

	rec, body = doJSON(t, handler, http.MethodGet, "/api/notifications", claimantToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("notifications: status %d", rec.Code)
	}
	notes := body["notifications"].([]any)
	if len(notes) != 1 || notes[0].(map[string]any)["type"] != "claim_approved" {
		t.Fatalf("expected a claim_approved notification, got %v", notes)
	}
}

func TestHTTPFeedLive(t *testing.T) {
	handler, svc, _ := newTestHandler(t)

	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/feed/live")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, "event: hello") {
		t.Fatalf("expected hello event, got %q (%v)", line, err)
	}

	svc.Feed().Notify(context.Background())

	for {
		line, err = reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if strings.HasPrefix(line, "event: change") {
			return
		}
	}
}
