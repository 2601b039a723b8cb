package alerting

import (
	"crypto/sha256"
	"encoding/hex"
)

// Cohort is a named customer/branch segment filter applied when computing a
// metric.
type Cohort struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ComputeCohortKey derives the stable index/uniqueness key for a cohort.
// A nil or empty cohort maps to the CohortKeyAll sentinel; the same cohort
// always yields the same key.
func ComputeCohortKey(cohort *Cohort) string {
	if cohort == nil || (cohort.ID == "" && cohort.Label == "") {
		return CohortKeyAll
	}
	sum := sha256.Sum256([]byte(cohort.ID + "\x1f" + cohort.Label))
	return hex.EncodeToString(sum[:16])
}
