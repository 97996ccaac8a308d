package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/newstalk/internal/model"
)

// withCookieAuth はCookie認証済みのリクエストを作る。
func withCookieAuth(r *http.Request) *http.Request {
	ctx := ContextWithUser(r.Context(), "learner@example.com")
	ctx = context.WithValue(ctx, cookieAuthContextKey, true)
	return r.WithContext(ctx)
}

func newCSRFTestHandler(called *bool) http.Handler {
	mw := NewCSRFMiddleware(CSRFConfig{CookieSecure: false, CookieDomain: ""})
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCSRFMiddleware_SafeMethods_PassThroughWithoutToken(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			called := false
			handler := newCSRFTestHandler(&called)

			req := withCookieAuth(httptest.NewRequest(method, "/api/dashboard", nil))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if !called {
				t.Fatalf("handler should have been called for %s request", method)
			}
		})
	}
}

func TestCSRFMiddleware_SafeMethod_IssuesCookieWhenMissing(t *testing.T) {
	called := false
	handler := newCSRFTestHandler(&called)

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var found *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == csrfCookieName {
			found = c
		}
	}
	if found == nil {
		t.Fatal("expected csrf_token cookie to be issued")
	}
	if found.HttpOnly {
		t.Error("csrf_token cookie must be readable from JavaScript")
	}
	if len(found.Value) != 64 {
		t.Errorf("token length = %d, want 64", len(found.Value))
	}
}

func TestCSRFMiddleware_SafeMethod_KeepsExistingCookie(t *testing.T) {
	called := false
	handler := newCSRFTestHandler(&called)

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if len(w.Result().Cookies()) != 0 {
		t.Error("should not reissue csrf cookie when present")
	}
}

func TestCSRFMiddleware_BearerAuthenticatedPOST_SkipsValidation(t *testing.T) {
	called := false
	handler := newCSRFTestHandler(&called)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	req = req.WithContext(ContextWithUser(req.Context(), "learner@example.com"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !called {
		t.Fatal("bearer authenticated POST should not require a CSRF token")
	}
}

func TestCSRFMiddleware_CookieAuthenticatedPOST(t *testing.T) {
	tests := []struct {
		name       string
		cookie     string
		header     string
		wantStatus int
	}{
		{"matching tokens", "token-abc", "token-abc", http.StatusOK},
		{"no cookie", "", "token-abc", http.StatusForbidden},
		{"no header", "token-abc", "", http.StatusForbidden},
		{"mismatch", "token-abc", "token-xyz", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := newCSRFTestHandler(&called)

			req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(csrfHeaderName, tt.header)
			}
			req = withCookieAuth(req)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if called != (tt.wantStatus == http.StatusOK) {
				t.Errorf("handler called = %v", called)
			}
			if tt.wantStatus == http.StatusForbidden {
				var body ErrorResponseBody
				if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
					t.Fatalf("failed to decode body: %v", err)
				}
				if body.Code != model.ErrCodeCSRFInvalid {
					t.Errorf("code = %q, want %q", body.Code, model.ErrCodeCSRFInvalid)
				}
			}
		})
	}
}

func TestCSRFTokenHandler_IssuesNewToken(t *testing.T) {
	handler := NewCSRFTokenHandler(CSRFConfig{CookieSecure: true, CookieDomain: "example.com"})

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Token == "" {
		t.Fatal("expected non-empty token")
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Value != body.Token {
		t.Errorf("cookie value = %q, want %q", c.Value, body.Token)
	}
	if !c.Secure {
		t.Error("cookie should be Secure")
	}
	if c.Domain != "example.com" {
		t.Errorf("cookie domain = %q, want example.com", c.Domain)
	}
}

func TestCSRFTokenHandler_ReturnsExistingToken(t *testing.T) {
	handler := NewCSRFTokenHandler(CSRFConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing-token"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Token != "existing-token" {
		t.Errorf("token = %q, want existing-token", body.Token)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("should not set a new cookie when one exists")
	}
}
