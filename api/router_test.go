package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/use-agent/popharvest/api/handler"
	"github.com/use-agent/popharvest/config"
	"github.com/use-agent/popharvest/models"
)

type stubFetcher struct{}

func (stubFetcher) FetchPopulation(ctx context.Context, url string) *models.PopulationResult {
	return &models.PopulationResult{
		Records:         []models.PopulationRecord{{Description: "Mew", CertificationNumber: "151"}},
		RecordsTotal:    1,
		RecordsFiltered: 1,
		Pages:           1,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Mode: "test"},
		Auth:      config.AuthConfig{Enabled: true, APIKeys: []string{"secret"}},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
	}
}

func TestRouter(t *testing.T) {
	jobs := handler.NewJobStore(stubFetcher{}, nil, config.JobsConfig{MaxConcurrent: 1, TTL: time.Hour})
	defer jobs.Stop()
	r := NewRouter(stubFetcher{}, jobs, nil, testConfig(), time.Now())

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		key    string
		want   int
	}{
		{"health is public", http.MethodGet, "/api/v1/health", "", "", http.StatusOK},
		{"population needs a key", http.MethodPost, "/api/v1/population", `{"url":"https://example.test/pop"}`, "", http.StatusUnauthorized},
		{"population", http.MethodPost, "/api/v1/population", `{"url":"https://example.test/pop"}`, "secret", http.StatusOK},
		{"job create", http.MethodPost, "/api/v1/population/jobs", `{"url":"https://example.test/pop"}`, "secret", http.StatusAccepted},
		{"job missing", http.MethodGet, "/api/v1/population/jobs/nope", "", "secret", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}
