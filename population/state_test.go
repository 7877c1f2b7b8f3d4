package population

import "testing"

func TestScrapeState_SetOnce(t *testing.T) {
	var s ScrapeState

	if s.SetTotal(0) || s.SetTotal(-5) {
		t.Error("non-positive totals must be ignored")
	}
	if !s.SetTotal(120) {
		t.Error("first positive total should be accepted")
	}
	if s.SetTotal(300) {
		t.Error("a known total must not be overwritten")
	}
	if s.TotalRecords != 120 {
		t.Errorf("TotalRecords = %d, want 120", s.TotalRecords)
	}

	if !s.SetPageSize(25) || s.SetPageSize(50) {
		t.Error("page size should be set exactly once")
	}
	if s.PageSize != 25 {
		t.Errorf("PageSize = %d, want 25", s.PageSize)
	}
}

func TestScrapeState_BeginPage(t *testing.T) {
	s := ScrapeState{InterceptedCount: 10}
	s.beginPage()
	if s.InterceptedCount != 0 || !s.PendingResponse {
		t.Errorf("beginPage left state %+v", s)
	}
}

func TestPageBound(t *testing.T) {
	tests := []struct {
		name                                string
		total, pageSize, collected, maxPage int
		want                                int
	}{
		{"exact", 50, 25, 25, 10, 2},
		{"rounds up", 51, 25, 25, 10, 3},
		{"capped", 1000, 10, 10, 3, 3},
		{"single page", 20, 300, 20, 10, 1},
		{"unknown total with data", 0, 0, 12, 10, 1},
		{"nothing found", 0, 0, 0, 10, 0},
		{"zero cap uses default", 1000, 10, 10, 0, 10},
		{"negative cap uses default", 1000, 10, 10, -1, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pageBound(tt.total, tt.pageSize, tt.collected, tt.maxPage); got != tt.want {
				t.Errorf("pageBound = %d, want %d", got, tt.want)
			}
		})
	}
}
