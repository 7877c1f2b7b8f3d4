package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/popharvest/cache"
	"github.com/use-agent/popharvest/models"
)

// Fetcher runs one population fetch. *population.Engine satisfies it.
type Fetcher interface {
	FetchPopulation(ctx context.Context, url string) *models.PopulationResult
}

// Slots bounds how many fetches run at once. *JobStore satisfies it.
type Slots interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Population returns a handler for POST /api/v1/population. slots may be
// nil, which leaves synchronous fetches unbounded.
//
// Orchestration flow:
//  1. Parse & validate request.
//  2. Serve from cache when max_age allows it.
//  3. Wait for a fetch slot; 503 if the request ends first.
//  4. Fetch (browser session opened and closed per request).
//  5. Map a fetch that produced nothing to an error status.
//  6. Store complete results in the cache and respond.
func Population(f Fetcher, slots Slots, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.PopulationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.PopulationResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		// ── 2. Cache lookup ─────────────────────────────────────────
		cacheKey := cache.Key(req.URL)
		if cc != nil && req.MaxAge > 0 {
			if cached, hit := cc.Get(cacheKey, req.MaxAge); hit {
				c.JSON(http.StatusOK, models.PopulationResponse{
					Success:     true,
					URL:         req.URL,
					Result:      cached,
					CacheStatus: "hit",
					TotalMs:     time.Since(totalStart).Milliseconds(),
				})
				return
			}
		}

		// ── 3. Fetch slot ───────────────────────────────────────────
		if slots != nil {
			release, err := slots.Acquire(c.Request.Context())
			if err != nil {
				c.JSON(mapErrorToStatus(models.ErrCodeLaunch), models.PopulationResponse{
					Success: false,
					URL:     req.URL,
					TotalMs: time.Since(totalStart).Milliseconds(),
					Error: &models.ErrorDetail{
						Code:    models.ErrCodeLaunch,
						Message: "all fetch slots are busy",
					},
				})
				return
			}
			defer release()
		}

		// ── 4. Fetch ────────────────────────────────────────────────
		res := f.FetchPopulation(c.Request.Context(), req.URL)

		// ── 5. Nothing collected ────────────────────────────────────
		if res == nil || (res.Error != nil && len(res.Records) == 0) {
			respondError(c, req.URL, res, time.Since(totalStart).Milliseconds())
			return
		}

		// ── 6. Cache store and respond ──────────────────────────────
		resp := models.PopulationResponse{
			Success: true,
			URL:     req.URL,
			Result:  res,
			Partial: res.Partial(),
			Error:   res.Error,
		}
		if cc != nil && req.MaxAge > 0 {
			cc.Set(cacheKey, res)
			resp.CacheStatus = "miss"
		}
		resp.TotalMs = time.Since(totalStart).Milliseconds()

		c.JSON(http.StatusOK, resp)
	}
}

// respondError maps the fetch error code to the correct HTTP status and
// writes a structured JSON error response.
func respondError(c *gin.Context, url string, res *models.PopulationResult, totalMs int64) {
	detail := &models.ErrorDetail{
		Code:    models.ErrCodeInternal,
		Message: "fetch returned no result",
	}
	if res != nil && res.Error != nil {
		detail = res.Error
	}

	c.JSON(mapErrorToStatus(detail.Code), models.PopulationResponse{
		Success: false,
		URL:     url,
		Result:  res,
		TotalMs: totalMs,
		Error:   detail,
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(code string) int {
	switch code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation, models.ErrCodeChallenge, models.ErrCodeIntercept:
		return http.StatusBadGateway // 502
	case models.ErrCodeLaunch:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	default:
		return http.StatusInternalServerError // 500
	}
}
