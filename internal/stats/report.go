package stats

import (
	"sort"

	"splitlab/internal/experiment/models"
	dErrors "splitlab/pkg/domainerrors"
)

// significanceLevel is the p-value threshold below which a lift is called.
const significanceLevel = 0.05

// VariantResult is one arm of an analyzed test.
type VariantResult struct {
	VariantID   models.VariantID `json:"variant_id"`
	Views       int64            `json:"views"`
	Conversions int64            `json:"conversions"`
	Rate        float64          `json:"rate"`
	CILow       float64          `json:"ci_low"`
	CIHigh      float64          `json:"ci_high"`

	// PValue compares the arm against control. Nil for the control arm.
	PValue      *float64 `json:"p_value,omitempty"`
	Significant bool     `json:"significant"`
}

// Report is the full analysis of a test's tallies.
type Report struct {
	TestID   models.TestID    `json:"test_id"`
	Control  models.VariantID `json:"control"`
	Variants []VariantResult  `json:"variants"`

	// Winner is the significant variant with the best rate above control,
	// nil while the test is still inconclusive.
	Winner *models.VariantID `json:"winner,omitempty"`
}

// Analyze compares every arm against control at 95 percent confidence.
// An arm with no recorded views makes the whole analysis premature.
func Analyze(testID models.TestID, counts map[models.VariantID]models.Counts, controlID models.VariantID) (*Report, error) {
	control, ok := counts[controlID]
	if !ok || control.Views == 0 {
		return nil, dErrors.Newf(dErrors.CodeInsufficientData, "control arm %s has no recorded views", controlID)
	}

	ids := make([]models.VariantID, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	report := &Report{
		TestID:   testID,
		Control:  controlID,
		Variants: make([]VariantResult, 0, len(ids)),
	}
	controlRate := float64(control.Conversions) / float64(control.Views)

	var winnerRate float64
	for _, id := range ids {
		c := counts[id]
		if c.Views == 0 {
			return nil, dErrors.Newf(dErrors.CodeInsufficientData, "variant %s has no recorded views", id)
		}

		low, high, err := ConfidenceInterval(c.Conversions, c.Views, 0.95)
		if err != nil {
			return nil, err
		}
		result := VariantResult{
			VariantID:   id,
			Views:       c.Views,
			Conversions: c.Conversions,
			Rate:        float64(c.Conversions) / float64(c.Views),
			CILow:       low,
			CIHigh:      high,
		}

		if id != controlID {
			p, err := PValue(control.Conversions, control.Views, c.Conversions, c.Views)
			if err != nil {
				return nil, err
			}
			result.PValue = &p
			result.Significant = p < significanceLevel

			if result.Significant && result.Rate > controlRate && result.Rate > winnerRate {
				winnerRate = result.Rate
				winner := id
				report.Winner = &winner
			}
		}

		report.Variants = append(report.Variants, result)
	}
	return report, nil
}
