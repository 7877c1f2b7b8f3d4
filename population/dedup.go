package population

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/use-agent/popharvest/models"
)

// RemoveDuplicates keeps the first record for every key, preserving order.
// Records with a positive SpecID are keyed by it; all others by the
// lower-cased description|variant|certification triple. A record whose
// triple is entirely empty has no usable key and is always kept.
// Running it on its own output returns the same slice contents.
func RemoveDuplicates(records []models.PopulationRecord) []models.PopulationRecord {
	seen := make(map[string]struct{}, len(records))
	unique := make([]models.PopulationRecord, 0, len(records))
	dupes := 0

	for _, rec := range records {
		key, ok := dedupKey(rec)
		if !ok {
			unique = append(unique, rec)
			continue
		}
		if _, exists := seen[key]; exists {
			dupes++
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, rec)
	}

	slog.Debug("deduplicated population records",
		"input", len(records),
		"unique", len(unique),
		"duplicates", dupes,
	)
	return unique
}

func dedupKey(rec models.PopulationRecord) (string, bool) {
	if rec.SpecID != nil && *rec.SpecID > 0 {
		return "specid:" + strconv.FormatInt(*rec.SpecID, 10), true
	}
	if rec.Description == "" && rec.Variant == "" && rec.CertificationNumber == "" {
		return "", false
	}
	return strings.ToLower(rec.Description + "|" + rec.Variant + "|" + rec.CertificationNumber), true
}
