// Package stats implements the frequentist analysis used to read test
// results: sample sizing, two-proportion z-tests and confidence intervals.
package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	dErrors "splitlab/pkg/domainerrors"
)

// Default critical values: 5 percent two-sided significance and 80 percent
// power.
const (
	defaultAlphaZ = 1.96
	defaultPowerZ = 0.84
)

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

type sampleParams struct {
	alphaZ float64
	powerZ float64
}

// SampleOption tunes the sample size calculation.
type SampleOption func(*sampleParams)

// WithAlphaZ overrides the significance critical value.
func WithAlphaZ(z float64) SampleOption {
	return func(p *sampleParams) {
		p.alphaZ = z
	}
}

// WithPowerZ overrides the power critical value.
func WithPowerZ(z float64) SampleOption {
	return func(p *sampleParams) {
		p.powerZ = z
	}
}

// SampleSize returns the visitors needed per variant to detect a relative
// lift of mde over the baseline conversion rate.
func SampleSize(baseline, mde float64, opts ...SampleOption) (int, error) {
	if baseline <= 0 || baseline >= 1 {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "baseline rate %.4f must be in (0,1)", baseline)
	}
	if mde <= 0 {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "minimum detectable effect %.4f must be positive", mde)
	}

	p := sampleParams{alphaZ: defaultAlphaZ, powerZ: defaultPowerZ}
	for _, opt := range opts {
		if opt != nil {
			opt(&p)
		}
	}

	p1 := baseline
	p2 := baseline * (1 + mde)
	if p2 >= 1 {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "lifted rate %.4f reaches 1, effect too large for baseline", p2)
	}

	pAvg := (p1 + p2) / 2
	z := p.alphaZ + p.powerZ
	n := z * z * 2 * pAvg * (1 - pAvg) / ((p2 - p1) * (p2 - p1))
	return int(math.Ceil(n)), nil
}

// TestDuration returns the days needed to fill every variant's sample given
// the site's daily eligible traffic.
func TestDuration(sampleSize, variants int, dailyVisitors int) (int, error) {
	if sampleSize <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "sample size must be positive")
	}
	if variants < 2 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "a test needs at least two variants")
	}
	if dailyVisitors <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "daily visitors must be positive")
	}
	total := float64(sampleSize) * float64(variants)
	return int(math.Ceil(total / float64(dailyVisitors))), nil
}

// PValue runs a two-sided two-proportion z-test with a pooled standard
// error. Identical observed proportions yield 1.
func PValue(convA, viewsA, convB, viewsB int64) (float64, error) {
	if err := validateArm(convA, viewsA); err != nil {
		return 0, err
	}
	if err := validateArm(convB, viewsB); err != nil {
		return 0, err
	}

	pA := float64(convA) / float64(viewsA)
	pB := float64(convB) / float64(viewsB)
	pooled := float64(convA+convB) / float64(viewsA+viewsB)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(viewsA) + 1/float64(viewsB)))
	if se == 0 {
		return 1, nil
	}

	z := (pB - pA) / se
	p := 2 * (1 - stdNormal.CDF(math.Abs(z)))
	return math.Min(math.Max(p, 0), 1), nil
}

// Critical values for the supported confidence levels.
var confidenceZ = map[float64]float64{
	0.95: 1.96,
	0.99: 2.576,
}

// ConfidenceInterval returns the Wald interval for an observed conversion
// rate, clamped to [0,1]. Only the 0.95 and 0.99 levels are supported.
func ConfidenceInterval(conversions, views int64, confidence float64) (low, high float64, err error) {
	if err := validateArm(conversions, views); err != nil {
		return 0, 0, err
	}
	z, ok := confidenceZ[confidence]
	if !ok {
		return 0, 0, dErrors.Newf(dErrors.CodeInvalidInput, "unsupported confidence level %.2f, use 0.95 or 0.99", confidence)
	}

	p := float64(conversions) / float64(views)
	margin := z * math.Sqrt(p*(1-p)/float64(views))
	return math.Max(p-margin, 0), math.Min(p+margin, 1), nil
}

func validateArm(conversions, views int64) error {
	if views <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "views must be positive")
	}
	if conversions < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "conversions must not be negative")
	}
	if conversions > views {
		return dErrors.Newf(dErrors.CodeInvalidInput, "conversions %d exceed views %d", conversions, views)
	}
	return nil
}
