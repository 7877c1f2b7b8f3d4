package cache

import (
	"testing"
	"time"

	"github.com/use-agent/popharvest/models"
)

func complete(n int) *models.PopulationResult {
	recs := make([]models.PopulationRecord, n)
	return &models.PopulationResult{Records: recs, RecordsTotal: n, RecordsFiltered: n}
}

func TestKey_Normalises(t *testing.T) {
	a := Key("https://Example.TEST/pop/charizard#rows")
	b := Key("  HTTPS://example.test/pop/charizard ")
	if a != b {
		t.Errorf("equivalent URLs produced different keys")
	}
	if Key("https://example.test/pop/Charizard") == a {
		t.Errorf("path case must stay significant")
	}
}

func TestCache_GetSet(t *testing.T) {
	c := New(10)
	defer c.Stop()

	key := Key("https://example.test/pop")
	res := complete(3)
	c.Set(key, res)

	if _, hit := c.Get(key, 0); hit {
		t.Error("max age 0 must bypass the cache")
	}
	got, hit := c.Get(key, 60_000)
	if !hit || got != res {
		t.Fatalf("expected a hit returning the stored result")
	}

	time.Sleep(5 * time.Millisecond)
	if _, hit := c.Get(key, 1); hit {
		t.Error("entry older than max age must miss")
	}
}

func TestCache_SkipsPartialResults(t *testing.T) {
	c := New(10)
	defer c.Stop()

	partial := &models.PopulationResult{
		Records:         make([]models.PopulationRecord, 2),
		RecordsTotal:    5,
		RecordsFiltered: 2,
	}
	failed := &models.PopulationResult{Error: &models.ErrorDetail{Code: models.ErrCodeTimeout}}

	c.Set("partial", partial)
	c.Set("failed", failed)
	c.Set("nil", nil)

	if c.Len() != 0 {
		t.Errorf("partial, failed and nil results must not be cached, have %d", c.Len())
	}
}

func TestCache_EvictsOldest(t *testing.T) {
	c := New(2)
	defer c.Stop()

	c.Set("a", complete(1))
	time.Sleep(time.Millisecond)
	c.Set("b", complete(1))
	time.Sleep(time.Millisecond)
	c.Set("c", complete(1))

	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	if _, hit := c.Get("a", 60_000); hit {
		t.Error("oldest entry should have been evicted")
	}
	if _, hit := c.Get("c", 60_000); !hit {
		t.Error("newest entry missing")
	}
}

func TestCache_StopTwice(t *testing.T) {
	c := New(1)
	c.Stop()
	c.Stop()
}
