package models

// PopulationResponse is the response for POST /api/v1/population.
type PopulationResponse struct {
	// Success is false only when no records could be collected because of
	// an error. A partial result is still a success.
	Success bool `json:"success"`

	URL string `json:"url"`

	Result *PopulationResult `json:"result,omitempty"`

	// Partial mirrors Result.Partial() for clients that skip the counts.
	Partial bool `json:"partial"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	TotalMs int64 `json:"total_ms"`

	// Error is populated when the fetch was cut short.
	Error *ErrorDetail `json:"error,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status      string `json:"status"` // "healthy" or "degraded"
	Uptime      string `json:"uptime"`
	RunningJobs int    `json:"running_jobs"`
	MaxJobs     int    `json:"max_jobs"`
	Version     string `json:"version"`
}
