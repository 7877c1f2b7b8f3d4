package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/use-agent/popharvest/models"
)

func toolRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", res.Content[0])
	}
	return text.Text
}

func sampleResult(n int) *models.PopulationResult {
	recs := make([]models.PopulationRecord, n)
	for i := range recs {
		recs[i] = models.PopulationRecord{
			Description:         fmt.Sprintf("Card %d", i+1),
			Variant:             "Holo",
			CertificationNumber: fmt.Sprint(i + 1),
			Population:          i + 1,
		}
	}
	return &models.PopulationResult{Records: recs, RecordsTotal: n, RecordsFiltered: n, Pages: 1}
}

// newJobAPI serves the jobs endpoints. The job stays processing for the
// first pending status reads.
func newJobAPI(t *testing.T, pending int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var reads atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/population/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req models.JobRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(models.JobResponse{ID: "pop-1", Status: models.JobStatusProcessing, URL: req.URL})
	})
	mux.HandleFunc("GET /api/v1/population/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.PathValue("id") != "pop-1" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(apiError{Error: &models.ErrorDetail{Code: models.ErrCodeNotFound, Message: "population job not found"}})
			return
		}
		st := models.JobStatusResponse{ID: "pop-1", URL: "https://example.test/pop", Status: models.JobStatusProcessing}
		if reads.Add(1) > pending {
			st.Status = models.JobStatusCompleted
			st.Result = sampleResult(3)
		}
		_ = json.NewEncoder(w).Encode(st)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &reads
}

func TestHandleStartJob_WaitPollsToCompletion(t *testing.T) {
	old := pollInterval
	pollInterval = 10 * time.Millisecond
	defer func() { pollInterval = old }()

	srv, reads := newJobAPI(t, 2)
	client := newAPIClient(srv.URL, "test-key")

	res, err := handleStartJob(client)(context.Background(), toolRequest("start_population_job", map[string]any{
		"url":  "https://example.test/pop",
		"wait": true,
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool reported an error: %s", resultText(t, res))
	}

	text := resultText(t, res)
	if !strings.Contains(text, "Job pop-1: completed") {
		t.Errorf("missing job status line:\n%s", text)
	}
	if !strings.Contains(text, "| Card 3 | Holo | 3 | 3 |") {
		t.Errorf("missing record row:\n%s", text)
	}
	if n := reads.Load(); n != 3 {
		t.Errorf("status reads = %d, want 3", n)
	}
}

func TestHandleStartJob_NoWait(t *testing.T) {
	srv, reads := newJobAPI(t, 0)
	client := newAPIClient(srv.URL, "test-key")

	res, _ := handleStartJob(client)(context.Background(), toolRequest("start_population_job", map[string]any{
		"url": "https://example.test/pop",
	}))

	if text := resultText(t, res); !strings.Contains(text, "Started job pop-1") {
		t.Errorf("unexpected result %q", text)
	}
	if n := reads.Load(); n != 0 {
		t.Errorf("status reads = %d, want none", n)
	}
}

func TestPollJobCompletion_Canceled(t *testing.T) {
	old := pollInterval
	pollInterval = 10 * time.Millisecond
	defer func() { pollInterval = old }()

	srv, _ := newJobAPI(t, 1<<30)
	client := newAPIClient(srv.URL, "test-key")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := pollJobCompletion(ctx, client, "pop-1"); err == nil {
		t.Error("expected an error once the context ended")
	}
}

func TestHandleGetJob_NotFound(t *testing.T) {
	srv, _ := newJobAPI(t, 0)
	client := newAPIClient(srv.URL, "test-key")

	res, _ := handleGetJob(client)(context.Background(), toolRequest("get_population_job", map[string]any{"id": "missing"}))

	if !res.IsError {
		t.Fatal("expected an error result")
	}
	if text := resultText(t, res); !strings.Contains(text, "[NOT_FOUND]") {
		t.Errorf("unexpected error text %q", text)
	}
}

func TestRenderResult(t *testing.T) {
	tests := []struct {
		name    string
		res     *models.PopulationResult
		want    []string
		notWant []string
	}{
		{
			name: "nil result",
			res:  nil,
			want: []string{"No result."},
		},
		{
			name:    "small table",
			res:     sampleResult(2),
			want:    []string{"Records: 2 unique of 2 reported, 1 pages", "| Card 1 | Holo | 1 | 1 |", "| Card 2 | Holo | 2 | 2 |"},
			notWant: []string{"more records", "Stopped early"},
		},
		{
			name:    "preview is capped",
			res:     sampleResult(previewRows + 5),
			want:    []string{fmt.Sprintf("| Card %d |", previewRows), "... 5 more records"},
			notWant: []string{fmt.Sprintf("| Card %d |", previewRows+1)},
		},
		{
			name: "truncated fetch",
			res: func() *models.PopulationResult {
				r := sampleResult(1)
				r.RecordsTotal = 10
				r.Error = &models.ErrorDetail{Code: models.ErrCodeTimeout, Message: "fetch truncated by global timeout"}
				return r
			}(),
			want: []string{"Stopped early: [SCRAPE_TIMEOUT] fetch truncated by global timeout"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderResult("https://example.test/pop", tt.res)
			if !strings.HasPrefix(got, "# Population: https://example.test/pop") {
				t.Errorf("missing header:\n%s", got)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("missing %q in:\n%s", w, got)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(got, w) {
					t.Errorf("unexpected %q in:\n%s", w, got)
				}
			}
		})
	}
}

func TestErrorText(t *testing.T) {
	if got := errorText(nil); got != "request failed" {
		t.Errorf("errorText(nil) = %q", got)
	}
	if got := errorText(&models.ErrorDetail{Code: models.ErrCodeLaunch, Message: "busy"}); got != "[LAUNCH_FAILED] busy" {
		t.Errorf("errorText = %q", got)
	}
}
