package population

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/use-agent/popharvest/models"
)

func TestRemoveDuplicates_SpecID(t *testing.T) {
	in := []models.PopulationRecord{
		{SpecID: int64p(1), Description: "Charizard", CertificationNumber: "4", Population: 10},
		{SpecID: int64p(1), Description: "Charizard (dup)", CertificationNumber: "4", Population: 99},
		{SpecID: int64p(2), Description: "Charizard", CertificationNumber: "4", Population: 5},
	}

	got := RemoveDuplicates(in)
	want := []models.PopulationRecord{in[0], in[2]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RemoveDuplicates mismatch (-want +got):\n%s", diff)
	}
}

func TestRemoveDuplicates_CompositeKeyIgnoresCase(t *testing.T) {
	in := []models.PopulationRecord{
		{Description: "Pikachu", Variant: "Holo", CertificationNumber: "58", Population: 1},
		{Description: "PIKACHU", Variant: "holo", CertificationNumber: "58", Population: 2},
		{Description: "Pikachu", Variant: "", CertificationNumber: "58", Population: 3},
	}

	got := RemoveDuplicates(in)
	want := []models.PopulationRecord{in[0], in[2]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RemoveDuplicates mismatch (-want +got):\n%s", diff)
	}
}

func TestRemoveDuplicates_NonPositiveSpecIDUsesComposite(t *testing.T) {
	in := []models.PopulationRecord{
		{SpecID: int64p(0), Description: "Mew", CertificationNumber: "151"},
		{Description: "mew", CertificationNumber: "151"},
	}

	if got := RemoveDuplicates(in); len(got) != 1 {
		t.Errorf("expected 1 record, got %d", len(got))
	}
}

func TestRemoveDuplicates_EmptyKeyKept(t *testing.T) {
	in := []models.PopulationRecord{
		{Population: 1},
		{Population: 2},
	}

	if got := RemoveDuplicates(in); len(got) != 2 {
		t.Errorf("records without a key must be kept, got %d", len(got))
	}
}

func TestRemoveDuplicates_Idempotent(t *testing.T) {
	in := []models.PopulationRecord{
		{SpecID: int64p(3), Description: "Gengar"},
		{Description: "Gengar", CertificationNumber: "94"},
		{SpecID: int64p(3), Description: "Gengar"},
		{Description: "gengar", CertificationNumber: "94"},
		{},
	}

	once := RemoveDuplicates(in)
	twice := RemoveDuplicates(once)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("second pass changed the result (-once +twice):\n%s", diff)
	}
	if len(once) != 3 {
		t.Errorf("expected 3 unique records, got %d", len(once))
	}
}

func TestRemoveDuplicates_Empty(t *testing.T) {
	if got := RemoveDuplicates(nil); len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
}
