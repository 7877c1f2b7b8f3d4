package population

import "github.com/use-agent/popharvest/models"

// ScrapeState is the mutable state of one fetch. It is created per call,
// touched only by the goroutine running that call, and dropped on return.
type ScrapeState struct {
	// TotalRecords is the row count the table advertises; 0 while unknown.
	TotalRecords int

	// PageSize is rows per table page; 0 while unknown.
	PageSize int

	// CurrentPage is the last page that was processed.
	CurrentPage int

	// Collected grows append-only until the final deduplication.
	Collected []models.PopulationRecord

	// PendingResponse is true between navigating to a page and either
	// receiving its data response or giving up on it.
	PendingResponse bool

	// InterceptedCount counts records intercepted for the current page only.
	InterceptedCount int
}

// SetTotal records the advertised row count. Non-positive values and
// attempts to overwrite a known count are ignored.
func (s *ScrapeState) SetTotal(n int) bool {
	if n <= 0 || s.TotalRecords > 0 {
		return false
	}
	s.TotalRecords = n
	return true
}

// SetPageSize records the page size under the same rules as SetTotal.
func (s *ScrapeState) SetPageSize(n int) bool {
	if n <= 0 || s.PageSize > 0 {
		return false
	}
	s.PageSize = n
	return true
}

// Append adds normalized records to the collection.
func (s *ScrapeState) Append(recs []models.PopulationRecord) {
	s.Collected = append(s.Collected, recs...)
}

// beginPage resets the per-page counters before a navigation.
func (s *ScrapeState) beginPage() {
	s.InterceptedCount = 0
	s.PendingResponse = true
}
