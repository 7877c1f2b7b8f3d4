package population

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/use-agent/popharvest/models"
)

func TestSummarize(t *testing.T) {
	res := &models.PopulationResult{
		Records: []models.PopulationRecord{
			{SpecID: int64p(1), Description: "Charizard", Variant: "Holo", Population: 10},
			{SpecID: int64p(2), Description: "Blastoise", Variant: "Holo", Population: 5},
			{Description: "Mew", Variant: "1st Edition", Population: 3},
			{Description: "Pikachu", Population: 2},
		},
		RecordsTotal:    8,
		RecordsFiltered: 4,
		Pages:           2,
	}

	st := Summarize(res)
	if st.Total != 8 || st.Unique != 4 || st.WithSpecID != 2 || st.Pages != 2 {
		t.Errorf("unexpected counts %+v", st)
	}
	if st.Population != 20 {
		t.Errorf("Population = %d, want 20", st.Population)
	}
	if st.SuccessRate != 50 {
		t.Errorf("SuccessRate = %v, want 50", st.SuccessRate)
	}

	want := []string{"Holo", "1st Edition", "none"}
	if diff := cmp.Diff(want, st.VariantLabels()); diff != "" {
		t.Errorf("VariantLabels mismatch (-want +got):\n%s", diff)
	}
}

func TestSummarize_Nil(t *testing.T) {
	st := Summarize(nil)
	if st.Total != 0 || st.SuccessRate != 0 || len(st.Variants) != 0 {
		t.Errorf("expected zero stats, got %+v", st)
	}
}
