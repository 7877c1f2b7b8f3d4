package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/use-agent/popharvest/config"
	"github.com/use-agent/popharvest/models"
	"github.com/use-agent/popharvest/webhook"
)

// Notifier delivers job events in the background.
type Notifier interface {
	DeliverAsync(url, secret string, event *webhook.Event)
}

// JobStore holds in-flight and finished population jobs.
// Finished jobs older than the configured TTL are expired every 5 minutes.
type JobStore struct {
	fetch  Fetcher
	notify Notifier
	ttl    time.Duration

	jobs    sync.Map // id → *models.Job
	mu      sync.Mutex
	sem     chan struct{}
	running atomic.Int32
	done    chan struct{}
	once    sync.Once
}

// NewJobStore creates a store and starts its expiry loop. notify may be nil.
func NewJobStore(f Fetcher, notify Notifier, cfg config.JobsConfig) *JobStore {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	s := &JobStore{
		fetch:  f,
		notify: notify,
		ttl:    cfg.TTL,
		sem:    make(chan struct{}, maxConcurrent),
		done:   make(chan struct{}),
	}
	go s.expireLoop()
	return s
}

// Acquire blocks until a fetch slot is free or ctx is done. Jobs and
// synchronous requests share the same slots. release must be called once
// the fetch returns; extra calls are ignored.
func (s *JobStore) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, models.NewScrapeError(models.ErrCodeLaunch, "no fetch slot available", ctx.Err())
	}
	s.running.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.running.Add(-1)
			<-s.sem
		})
	}, nil
}

// Running returns the number of fetches currently holding a slot.
func (s *JobStore) Running() int { return int(s.running.Load()) }

// Capacity returns the number of fetches allowed to run at once.
func (s *JobStore) Capacity() int { return cap(s.sem) }

// Stop terminates the expiry loop.
func (s *JobStore) Stop() {
	s.once.Do(func() { close(s.done) })
}

// Post returns a handler for POST /api/v1/population/jobs.
func (s *JobStore) Post() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.JobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		job := s.create(req.URL)
		go s.run(job.ID, req)

		c.JSON(http.StatusAccepted, models.JobResponse{
			ID:     job.ID,
			Status: models.JobStatusProcessing,
			URL:    req.URL,
		})
	}
}

// Get returns a handler for GET /api/v1/population/jobs/:id.
func (s *JobStore) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := s.Lookup(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"error": models.ErrorDetail{
					Code:    models.ErrCodeNotFound,
					Message: "population job not found",
				},
			})
			return
		}

		c.JSON(http.StatusOK, models.JobStatusResponse{
			ID:        job.ID,
			Status:    job.Status,
			URL:       job.URL,
			CreatedAt: job.CreatedAt,
			UpdatedAt: job.UpdatedAt,
			Result:    job.Result,
		})
	}
}

// Lookup returns a snapshot of the job with the given id.
func (s *JobStore) Lookup(id string) (models.Job, bool) {
	val, ok := s.jobs.Load(id)
	if !ok {
		return models.Job{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return *val.(*models.Job), true
}

func (s *JobStore) create(url string) *models.Job {
	now := time.Now().Unix()
	job := &models.Job{
		ID:        "pop-" + uuid.NewString(),
		URL:       url,
		Status:    models.JobStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs.Store(job.ID, job)
	return job
}

// run waits for a slot, fetches, records the outcome and fires the webhook.
func (s *JobStore) run(id string, req models.JobRequest) {
	release, _ := s.Acquire(context.Background())
	defer release()

	res := s.fetch.FetchPopulation(context.Background(), req.URL)
	status := models.JobStatusFor(res)

	if val, ok := s.jobs.Load(id); ok {
		job := val.(*models.Job)
		s.mu.Lock()
		job.Status = status
		job.Result = res
		job.UpdatedAt = time.Now().Unix()
		s.mu.Unlock()
	}

	records := 0
	if res != nil {
		records = len(res.Records)
	}
	slog.Info("population job finished",
		"id", id,
		"status", status,
		"records", records,
	)

	if s.notify == nil || req.WebhookURL == "" {
		return
	}
	eventType := webhook.EventPopulationCompleted
	if status == models.JobStatusFailed {
		eventType = webhook.EventPopulationFailed
	}
	s.notify.DeliverAsync(req.WebhookURL, req.WebhookSecret, &webhook.Event{
		Type:      eventType,
		JobID:     id,
		URL:       req.URL,
		Timestamp: time.Now().Unix(),
		Data:      res,
	})
}

func (s *JobStore) expireLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.expire(time.Now())
		}
	}
}

// expire removes finished jobs whose last update is older than the TTL.
func (s *JobStore) expire(now time.Time) {
	cutoff := now.Add(-s.ttl).Unix()
	s.jobs.Range(func(key, value any) bool {
		job := value.(*models.Job)
		s.mu.Lock()
		stale := job.Status != models.JobStatusProcessing && job.UpdatedAt < cutoff
		s.mu.Unlock()
		if stale {
			s.jobs.Delete(key)
		}
		return true
	})
}
