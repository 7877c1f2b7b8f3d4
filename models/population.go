package models

// PopulationRecord is the canonical graded-population row. Records are
// produced once by the normalizer and never mutated afterwards.
type PopulationRecord struct {
	// SpecID is only known for rows harvested from the data endpoint.
	SpecID *int64 `json:"specId,omitempty"`

	// Description is the subject name with any variant suffix removed.
	Description string `json:"description"`

	// Variant is the detected variant label, or "" when none applies.
	Variant string `json:"variant"`

	CertificationNumber string `json:"certificationNumber"`

	// Population is the total graded count, never negative.
	Population int `json:"population"`
}

// PopulationResult is what a fetch always returns, complete or partial.
type PopulationResult struct {
	Records []PopulationRecord `json:"records"`

	// RecordsTotal is the row count the table advertised, or len(Records)
	// when it never advertised one.
	RecordsTotal int `json:"recordsTotal"`

	// RecordsFiltered is len(Records). A value below RecordsTotal signals
	// a partial fetch.
	RecordsFiltered int `json:"recordsFiltered"`

	// Pages is the number of table pages that were visited.
	Pages int `json:"pages"`

	DurationMs int64 `json:"durationMs"`

	// Error is set when the run was cut short by a launch failure or an
	// unexpected fault. The records collected up to that point are kept.
	Error *ErrorDetail `json:"error,omitempty"`
}

// Partial reports whether fewer unique records were returned than advertised.
func (r *PopulationResult) Partial() bool {
	return r.Error != nil || r.RecordsFiltered < r.RecordsTotal
}
