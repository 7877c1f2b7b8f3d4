package models

// PopulationRequest is the payload for POST /api/v1/population.
type PopulationRequest struct {
	// URL is the population page to fetch. Required.
	URL string `json:"url" binding:"required,url"`

	// MaxAge enables the result cache: a cached result younger than MaxAge
	// milliseconds is returned without launching a browser.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// JobRequest is the payload for POST /api/v1/population/jobs.
type JobRequest struct {
	URL string `json:"url" binding:"required,url"`

	// WebhookURL receives a population.completed event when the job ends.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs the webhook body with HMAC-SHA256.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}
