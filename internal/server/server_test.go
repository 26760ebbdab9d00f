package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kagemask/kagemask/internal/cache"
	"github.com/kagemask/kagemask/internal/config"
	"github.com/kagemask/kagemask/internal/logger"
	"github.com/kagemask/kagemask/internal/pii"
	"github.com/kagemask/kagemask/internal/pipeline"
)

const testPatternsYAML = `
patterns:
  - name: phone_number
    regex: '0\d{1,4}-\d{1,4}-\d{3,4}'
    description: Japanese phone numbers
  - name: postal_code
    regex: '(?:^|[^\d-])(\d{3}-\d{4})(?:[^\d-]|$)'
    description: Japanese postal codes
  - name: email
    regex: '[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}'
    description: Email addresses
`

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	if err := os.WriteFile(path, []byte(testPatternsYAML), 0644); err != nil {
		t.Fatalf("failed to write patterns fixture: %v", err)
	}
	cfg := config.GetDefaults()
	cfg.Patterns.File = path
	cfg.Security.RateLimitEnabled = false
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, resultCache cache.ResultCache) *Server {
	t.Helper()
	pipe, err := pipeline.New(cfg, logger.Nop(), pipeline.Sinks{Cache: resultCache})
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}
	t.Cleanup(func() { pipe.Close() })

	srv, err := New(cfg, logger.Nop(), pipe, resultCache, nil)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleMask(t *testing.T) {
	srv := newTestServer(t, newTestConfig(t), nil)

	rec := doJSON(t, srv, "POST", "/v1/mask", `{"text":"田中さんの電話番号は03-1234-5678です。"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		MaskedText string `json:"masked_text"`
		Entities   []struct {
			Text  string `json:"text"`
			Label string `json:"label"`
		} `json:"entities"`
		RiskScore float64 `json:"risk_score"`
		Cached    bool    `json:"cached"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if want := "<MASK>さんの電話番号は<MASK>です。"; resp.MaskedText != want {
		t.Errorf("masked = %q, want %q", resp.MaskedText, want)
	}
	if len(resp.Entities) != 2 {
		t.Fatalf("got %d entities, want 2", len(resp.Entities))
	}
	if resp.Entities[0].Text != "田中" || resp.Entities[0].Label != string(pii.LabelPerson) {
		t.Errorf("first entity = %+v", resp.Entities[0])
	}
	if resp.Entities[1].Text != "03-1234-5678" || resp.Entities[1].Label != string(pii.LabelPhoneNumber) {
		t.Errorf("second entity = %+v", resp.Entities[1])
	}
	if resp.RiskScore <= 0.6 {
		t.Errorf("risk = %v, want > 0.6", resp.RiskScore)
	}
	if resp.Cached {
		t.Error("fresh result reported as cached")
	}
}

func TestHandleMaskEmptyEntities(t *testing.T) {
	srv := newTestServer(t, newTestConfig(t), nil)

	rec := doJSON(t, srv, "POST", "/v1/mask", `{"text":"これは個人情報を含まないテキストです。"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	// Entities must serialize as an empty array, not null.
	if !strings.Contains(rec.Body.String(), `"entities":[]`) {
		t.Errorf("body = %s, want empty entities array", rec.Body.String())
	}
}

func TestHandleMaskErrors(t *testing.T) {
	cfg := newTestConfig(t)
	srv := newTestServer(t, cfg, nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{
			name:       "invalid json",
			body:       "{not json",
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid JSON body",
		},
		{
			name:       "empty text",
			body:       `{"text":""}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "text is required",
		},
		{
			name:       "whitespace text",
			body:       `{"text":"   "}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "text is required",
		},
		{
			name:       "oversize text",
			body:       `{"text":"` + strings.Repeat("a", cfg.Pipeline.MaxTextLength+1) + `"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "too long",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv, "POST", "/v1/mask", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body = %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.wantError) {
				t.Errorf("body = %s, want error containing %q", rec.Body.String(), tt.wantError)
			}
		})
	}
}

func TestHandleMaskMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, newTestConfig(t), nil)

	rec := doJSON(t, srv, "GET", "/v1/mask", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, newTestConfig(t), nil)

	rec := doJSON(t, srv, "GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "healthy" || resp.Service != "kagemask" {
		t.Errorf("health = %+v", resp)
	}
	if resp.Patterns != 3 {
		t.Errorf("patterns = %d, want 3", resp.Patterns)
	}
	if resp.Version != Version {
		t.Errorf("version = %q, want %q", resp.Version, Version)
	}
}

func TestHandleVersion(t *testing.T) {
	srv := newTestServer(t, newTestConfig(t), nil)

	rec := doJSON(t, srv, "GET", "/version", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["version"] != Version {
		t.Errorf("version = %q, want %q", resp["version"], Version)
	}
}

func TestCacheEndpoints(t *testing.T) {
	cfg := newTestConfig(t)
	memory := cache.NewMemory(zap.NewNop())
	srv := newTestServer(t, cfg, memory)

	stored := &pii.MaskingResult{MaskedText: "<MASK>", RiskScore: 0.5}
	key := cache.Fingerprint("stats fixture", cfg.Cache.KeyPrefix)
	if err := memory.Set(context.Background(), key, stored, time.Minute); err != nil {
		t.Fatalf("seed set failed: %v", err)
	}

	t.Run("stats", func(t *testing.T) {
		rec := doJSON(t, srv, "GET", "/v1/cache/stats", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var stats cache.Stats
		if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if stats.Backend != "memory" {
			t.Errorf("backend = %q", stats.Backend)
		}
		if stats.Entries != 1 {
			t.Errorf("entries = %d, want 1", stats.Entries)
		}
	})

	t.Run("clear expired", func(t *testing.T) {
		rec := doJSON(t, srv, "POST", "/v1/cache/expired", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"removed":0`) {
			t.Errorf("body = %s", rec.Body.String())
		}
	})

	t.Run("clear", func(t *testing.T) {
		rec := doJSON(t, srv, "DELETE", "/v1/cache", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"status":"cleared"`) {
			t.Errorf("body = %s", rec.Body.String())
		}

		if got, err := memory.Get(context.Background(), key); err != nil || got != nil {
			t.Errorf("entry survived clear: %v, %v", got, err)
		}
	})
}

func TestCacheEndpointsDisabled(t *testing.T) {
	srv := newTestServer(t, newTestConfig(t), nil)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{"GET", "/v1/cache/stats"},
		{"DELETE", "/v1/cache"},
		{"POST", "/v1/cache/expired"},
	} {
		rec := doJSON(t, srv, tc.method, tc.path, "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s: status = %d, want 503", tc.method, tc.path, rec.Code)
		}
	}
}

func TestRateLimit(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Security.RateLimitEnabled = true
	cfg.Security.RequestsPerMinute = 60
	cfg.Security.Burst = 2
	srv := newTestServer(t, cfg, nil)

	body := `{"text":"これは個人情報を含まないテキストです。"}`
	for i := 0; i < 2; i++ {
		rec := doJSON(t, srv, "POST", "/v1/mask", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}

	rec := doJSON(t, srv, "POST", "/v1/mask", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After header")
	}
}

func TestDashboardRoute(t *testing.T) {
	srv := newTestServer(t, newTestConfig(t), nil)

	rec := doJSON(t, srv, "GET", "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "kagemask") {
		t.Error("dashboard body missing service name")
	}
}
