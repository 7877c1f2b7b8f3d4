package population

import (
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/use-agent/popharvest/models"
)

// totalRowMarker is the subject name the table uses for its summary row.
const totalRowMarker = "TOTAL POPULATION"

// RawItem is one harvested row before normalization. It is either an
// APIItem or a DOMItem.
type RawItem interface {
	rawItem()
}

// APIItem is a row decoded from the intercepted data endpoint. SpecID and
// Total arrive as numbers or strings depending on the backend, so they
// are kept loosely typed until normalization.
type APIItem struct {
	SpecID      any    `json:"SpecID"`
	SubjectName string `json:"SubjectName"`
	Variety     string `json:"Variety"`
	CardNumber  string `json:"CardNumber"`
	Total       any    `json:"Total"`
}

// UnmarshalJSON tolerates non-string SubjectName/Variety/CardNumber
// values instead of rejecting the whole response.
func (a *APIItem) UnmarshalJSON(b []byte) error {
	var raw struct {
		SpecID      any `json:"SpecID"`
		SubjectName any `json:"SubjectName"`
		Variety     any `json:"Variety"`
		CardNumber  any `json:"CardNumber"`
		Total       any `json:"Total"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	a.SpecID = raw.SpecID
	a.SubjectName = looseString(raw.SubjectName)
	a.Variety = looseString(raw.Variety)
	a.CardNumber = looseString(raw.CardNumber)
	a.Total = raw.Total
	return nil
}

func (*APIItem) rawItem() {}

// DOMItem is a row read from the rendered table. The subject cell has
// already been split by ExtractVariant.
type DOMItem struct {
	SubjectName string
	Variety     string
	CardNumber  string
	Total       string
}

func (*DOMItem) rawItem() {}

// FormatResponseData normalizes raw items into canonical records. Summary
// rows, rows without a subject and nil items are skipped and counted; it
// never fails.
func FormatResponseData(items []RawItem) []models.PopulationRecord {
	if len(items) == 0 {
		return nil
	}

	out := make([]models.PopulationRecord, 0, len(items))
	skipped := 0
	for _, item := range items {
		rec, ok := normalize(item)
		if !ok {
			skipped++
			continue
		}
		out = append(out, rec)
	}

	slog.Debug("formatted population rows",
		"input", len(items),
		"valid", len(out),
		"skipped", skipped,
	)
	return out
}

func normalize(item RawItem) (models.PopulationRecord, bool) {
	var (
		subject, variety, cert string
		total                  any
		specID                 *int64
	)

	switch it := item.(type) {
	case *APIItem:
		if it == nil {
			return models.PopulationRecord{}, false
		}
		subject, variety, cert, total = it.SubjectName, it.Variety, it.CardNumber, it.Total
		specID = parseSpecID(it.SpecID)
	case *DOMItem:
		if it == nil {
			return models.PopulationRecord{}, false
		}
		subject, variety, cert, total = it.SubjectName, it.Variety, it.CardNumber, it.Total
	default:
		return models.PopulationRecord{}, false
	}

	if strings.TrimSpace(subject) == "" || strings.EqualFold(strings.TrimSpace(subject), totalRowMarker) {
		return models.PopulationRecord{}, false
	}

	description := subject
	if variety == "" {
		description, variety = ExtractVariant(subject)
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return models.PopulationRecord{}, false
	}

	return models.PopulationRecord{
		SpecID:              specID,
		Description:         description,
		Variant:             strings.TrimSpace(variety),
		CertificationNumber: strings.TrimSpace(cert),
		Population:          parsePopulation(total),
	}, true
}

// parsePopulation coerces a JSON number, a comma-grouped string or an
// already-typed int into a non-negative count. Anything else yields 0.
func parsePopulation(v any) int {
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case int:
		n = float64(t)
	case int64:
		n = float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		n = f
	case string:
		return parseCount(t)
	default:
		return 0
	}
	if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
		return 0
	}
	return int(n)
}

// parseCount reads the leading integer of a comma-grouped string, the way
// a lenient integer parse does: "1,234 cards" is 1234, "n/a" is 0.
func parseCount(s string) int {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// parseSpecID keeps only numeric spec identifiers.
func parseSpecID(v any) *int64 {
	var id int64
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return nil
		}
		id = int64(t)
	case int:
		id = int64(t)
	case int64:
		id = t
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return nil
		}
		id = i
	default:
		return nil
	}
	return &id
}

func looseString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
