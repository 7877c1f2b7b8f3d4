package models

// Job status values.
const (
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusPartial    = "partial"
	JobStatusFailed     = "failed"
)

// Job tracks one background population fetch.
type Job struct {
	ID        string
	URL       string
	Status    string
	Result    *PopulationResult
	CreatedAt int64
	UpdatedAt int64
}

// JobResponse is the immediate response for POST /api/v1/population/jobs.
type JobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	URL    string `json:"url"`
}

// JobStatusResponse is the response for GET /api/v1/population/jobs/:id.
type JobStatusResponse struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	URL       string            `json:"url"`
	CreatedAt int64             `json:"created_at"`
	UpdatedAt int64             `json:"updated_at"`
	Result    *PopulationResult `json:"result,omitempty"`
}

// JobStatusFor derives the terminal status of a finished fetch.
func JobStatusFor(r *PopulationResult) string {
	switch {
	case r == nil:
		return JobStatusFailed
	case r.Error != nil && len(r.Records) == 0:
		return JobStatusFailed
	case r.Partial():
		return JobStatusPartial
	default:
		return JobStatusCompleted
	}
}
