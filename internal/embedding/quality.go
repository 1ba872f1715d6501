package embedding

import "math"

// QualityReport summarizes basic validity checks on one embedding vector.
type QualityReport struct {
	IsValid      bool     `json:"is_valid"`
	Dimension    int      `json:"dimension"`
	Norm         float64  `json:"norm"`
	QualityScore float64  `json:"quality_score"`
	Issues       []string `json:"issues,omitempty"`
}

// ValidateVector checks dimension agreement and finiteness and computes
// the vector norm. Any issue forces the quality score to zero; otherwise
// the norm itself serves as a monotonic quality signal.
func ValidateVector(vec []float32, expectedDimension int) QualityReport {
	report := QualityReport{Dimension: len(vec)}

	if len(vec) != expectedDimension {
		report.Issues = append(report.Issues, "dimension mismatch")
	}

	var sumSq float64
	nonFinite := false
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			nonFinite = true
		}
		sumSq += f * f
	}
	if nonFinite {
		report.Issues = append(report.Issues, "embedding contains non-finite value")
	}

	if len(vec) > 0 && !nonFinite {
		report.Norm = math.Sqrt(sumSq)
	}

	report.IsValid = len(report.Issues) == 0
	if report.IsValid {
		report.QualityScore = report.Norm
	}
	return report
}
