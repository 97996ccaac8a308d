package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

// newIntegrationRouter は本番と同じ順序でミドルウェアを組んだルーターを返す。
func newIntegrationRouter(t *testing.T, logBuf *bytes.Buffer) http.Handler {
	t.Helper()

	rl := NewRateLimiter(testRateLimiterConfig())
	t.Cleanup(rl.Stop)
	csrfConfig := CSRFConfig{}

	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware(nil))
	r.Use(NewLoggingMiddleware(newJSONLogger(logBuf)))
	r.Use(NewCORSMiddleware("http://localhost:3000"))

	r.Get("/api/csrf-token", NewCSRFTokenHandler(csrfConfig).ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(NewAuthMiddleware(tokenVerifier()))
		r.Use(NewCSRFMiddleware(csrfConfig))
		r.Use(rl.GeneralMiddleware())

		r.Get("/api/dashboard", func(w http.ResponseWriter, r *http.Request) {
			email, _ := UserFromContext(r.Context())
			json.NewEncoder(w).Encode(map[string]string{"user": email})
		})
		r.Post("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})
	})
	return r
}

func TestRouterIntegration_CSRFTokenEndpoint(t *testing.T) {
	var logs bytes.Buffer
	router := newIntegrationRouter(t, &logs)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Token == "" {
		t.Error("expected non-empty token")
	}
}

func TestRouterIntegration_ProtectedRouteRequiresToken(t *testing.T) {
	var logs bytes.Buffer
	router := newIntegrationRouter(t, &logs)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.Header.Set("Authorization", "Bearer good")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body["user"] != "learner@example.com" {
		t.Errorf("user = %q, want learner@example.com", body["user"])
	}
}

func TestRouterIntegration_CookieAuthPOSTNeedsCSRF(t *testing.T) {
	var logs bytes.Buffer
	router := newIntegrationRouter(t, &logs)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookieName, Value: "good"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("without csrf: status = %d, want %d", w.Code, http.StatusForbidden)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookieName, Value: "good"})
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "tok"})
	req.Header.Set(csrfHeaderName, "tok")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("with csrf: status = %d, want %d", w.Code, http.StatusCreated)
	}
}

func TestRouterIntegration_BearerPOSTWithoutCSRF(t *testing.T) {
	var logs bytes.Buffer
	router := newIntegrationRouter(t, &logs)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
}
