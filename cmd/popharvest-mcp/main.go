package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/popharvest/models"
)

// previewRows caps the records rendered into a tool result.
const previewRows = 50

// pollInterval spaces job status requests while waiting.
var pollInterval = 2 * time.Second

// apiError is the body of the jobs endpoints' error responses.
type apiError struct {
	Error *models.ErrorDetail `json:"error"`
}

func main() {
	_ = godotenv.Load()

	apiURL := os.Getenv("POPHARVEST_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("POPHARVEST_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "POPHARVEST_API_KEY is required")
		os.Exit(1)
	}

	client := newAPIClient(apiURL, apiKey)

	s := server.NewMCPServer(
		"popharvest",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	fetchTool := mcp.NewTool("fetch_population",
		mcp.WithDescription("Fetch a grading-population table and return its records (description, variant, certification number, population). Launches a headless browser and pages through the table; may take a few minutes."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The population page URL"),
		),
		mcp.WithNumber("max_age",
			mcp.Description("Serve a cached result younger than this many milliseconds (0 disables the cache)"),
		),
	)
	s.AddTool(fetchTool, handleFetchPopulation(client))

	jobTool := mcp.NewTool("start_population_job",
		mcp.WithDescription("Start a background population fetch. Returns the job id immediately unless wait is true, in which case it polls until the job finishes."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The population page URL"),
		),
		mcp.WithString("webhook_url",
			mcp.Description("Optional URL that receives a population.completed event"),
		),
		mcp.WithBoolean("wait",
			mcp.Description("Poll until the job finishes (default false)"),
		),
	)
	s.AddTool(jobTool, handleStartJob(client))

	statusTool := mcp.NewTool("get_population_job",
		mcp.WithDescription("Get the status and result of a background population job."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The job id returned by start_population_job"),
		),
	)
	s.AddTool(statusTool, handleGetJob(client))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// newAPIClient returns a resty client preconfigured for the popharvest API.
// A synchronous fetch can run for the whole engine budget, hence the long timeout.
func newAPIClient(apiURL, apiKey string) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimRight(apiURL, "/")).
		SetHeader("X-API-Key", apiKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(5 * time.Minute)
}

func handleFetchPopulation(client *resty.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		var out models.PopulationResponse
		_, err = client.R().
			SetContext(ctx).
			SetBody(models.PopulationRequest{
				URL:    url,
				MaxAge: request.GetInt("max_age", 0),
			}).
			SetResult(&out).
			SetError(&out).
			Post("/api/v1/population")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("API request failed: %v", err)), nil
		}

		if !out.Success {
			return mcp.NewToolResultError(errorText(out.Error)), nil
		}
		return mcp.NewToolResultText(renderResult(url, out.Result)), nil
	}
}

func handleStartJob(client *resty.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		var job models.JobResponse
		var apiErr apiError
		resp, err := client.R().
			SetContext(ctx).
			SetBody(models.JobRequest{
				URL:        url,
				WebhookURL: request.GetString("webhook_url", ""),
			}).
			SetResult(&job).
			SetError(&apiErr).
			Post("/api/v1/population/jobs")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("job request failed: %v", err)), nil
		}
		if resp.IsError() || job.ID == "" {
			return mcp.NewToolResultError(errorText(apiErr.Error)), nil
		}

		if !request.GetBool("wait", false) {
			return mcp.NewToolResultText(fmt.Sprintf("Started job %s for %s (status: %s)", job.ID, job.URL, job.Status)), nil
		}

		status, err := pollJobCompletion(ctx, client, job.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling job failed: %v", err)), nil
		}
		return mcp.NewToolResultText(renderJob(status)), nil
	}
}

func handleGetJob(client *resty.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}

		status, err := getJob(ctx, client, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(renderJob(status)), nil
	}
}

func getJob(ctx context.Context, client *resty.Client, id string) (*models.JobStatusResponse, error) {
	var status models.JobStatusResponse
	var apiErr apiError
	resp, err := client.R().
		SetContext(ctx).
		SetResult(&status).
		SetError(&apiErr).
		Get("/api/v1/population/jobs/" + id)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%s", errorText(apiErr.Error))
	}
	return &status, nil
}

// pollJobCompletion polls a job until its status is no longer "processing" or ctx is cancelled.
func pollJobCompletion(ctx context.Context, client *resty.Client, id string) (*models.JobStatusResponse, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			status, err := getJob(ctx, client, id)
			if err != nil {
				return nil, err
			}
			if status.Status != models.JobStatusProcessing {
				return status, nil
			}
		}
	}
}

func errorText(e *models.ErrorDetail) string {
	if e == nil {
		return "request failed"
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func renderJob(st *models.JobStatusResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Job %s: %s\n\n", st.ID, st.Status)
	sb.WriteString(renderResult(st.URL, st.Result))
	return sb.String()
}

// renderResult formats a result as a short header plus a markdown table.
func renderResult(url string, res *models.PopulationResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Population: %s\n\n", url)
	if res == nil {
		sb.WriteString("No result.\n")
		return sb.String()
	}

	fmt.Fprintf(&sb, "Records: %d unique of %d reported, %d pages, %d ms\n",
		res.RecordsFiltered, res.RecordsTotal, res.Pages, res.DurationMs)
	if res.Error != nil {
		fmt.Fprintf(&sb, "Stopped early: %s\n", errorText(res.Error))
	}
	sb.WriteString("\n| Description | Variant | Cert # | Population |\n|---|---|---|---|\n")

	for i, rec := range res.Records {
		if i == previewRows {
			fmt.Fprintf(&sb, "\n... %d more records\n", len(res.Records)-previewRows)
			break
		}
		fmt.Fprintf(&sb, "| %s | %s | %s | %d |\n",
			rec.Description, rec.Variant, rec.CertificationNumber, rec.Population)
	}
	return sb.String()
}
