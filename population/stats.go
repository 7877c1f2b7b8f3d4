package population

import (
	"sort"

	"github.com/use-agent/popharvest/models"
)

// Stats summarises a fetch result for operators.
type Stats struct {
	Total      int `json:"total"`
	Unique     int `json:"unique"`
	WithSpecID int `json:"with_spec_id"`
	Pages      int `json:"pages"`

	// Variants counts records per variant label; "" is reported as "none".
	Variants map[string]int `json:"variants"`

	// SuccessRate is Unique/Total as a percentage, 0 when Total is 0.
	SuccessRate float64 `json:"success_rate"`

	Population int `json:"population"`
}

// Summarize computes Stats for a result.
func Summarize(res *models.PopulationResult) Stats {
	st := Stats{Variants: map[string]int{}}
	if res == nil {
		return st
	}
	st.Total = res.RecordsTotal
	st.Unique = res.RecordsFiltered
	st.Pages = res.Pages
	for _, rec := range res.Records {
		if rec.SpecID != nil {
			st.WithSpecID++
		}
		label := rec.Variant
		if label == "" {
			label = "none"
		}
		st.Variants[label]++
		st.Population += rec.Population
	}
	if st.Total > 0 {
		st.SuccessRate = float64(st.Unique) / float64(st.Total) * 100
	}
	return st
}

// VariantLabels returns the variant labels of st ordered by descending count.
func (st Stats) VariantLabels() []string {
	labels := make([]string, 0, len(st.Variants))
	for l := range st.Variants {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		if st.Variants[labels[i]] != st.Variants[labels[j]] {
			return st.Variants[labels[i]] > st.Variants[labels[j]]
		}
		return labels[i] < labels[j]
	})
	return labels
}
