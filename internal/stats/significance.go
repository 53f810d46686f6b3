package stats

import (
	"fmt"
	"math"
)

// DefaultAlpha is the significance threshold for p-values.
const DefaultAlpha = 0.05

type SampleSize struct {
	Control int `json:"control"`
	Test    int `json:"test"`
}

// SignificanceResult is a two-proportion z-test between a control and a
// test variant.
type SignificanceResult struct {
	ExperimentID    string     `json:"experimentId"`
	ControlVariant  string     `json:"controlVariant"`
	TestVariant     string     `json:"testVariant"`
	ZScore          float64    `json:"zScore"`
	PValue          float64    `json:"pValue"`
	IsSignificant   bool       `json:"isSignificant"`
	ConfidenceLevel float64    `json:"confidenceLevel"` // percent
	Uplift          float64    `json:"uplift"`          // percent
	UpliftDefined   bool       `json:"upliftDefined"`   // false when the control rate is 0
	SampleSize      SampleSize `json:"sampleSize"`
}

// Compare runs TwoProportion on the named variants of perf.
func Compare(perf []VariantPerformance, controlID, testID string, alpha float64) (*SignificanceResult, error) {
	control, ok := Find(perf, controlID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVariantNotFound, controlID)
	}
	test, ok := Find(perf, testID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVariantNotFound, testID)
	}
	return TwoProportion(control, test, alpha)
}

// TwoProportion performs a pooled two-sided two-proportion z-test.
func TwoProportion(control, test VariantPerformance, alpha float64) (*SignificanceResult, error) {
	if control.Impressions == 0 || test.Impressions == 0 {
		return nil, fmt.Errorf("%w: control has %d impressions, test has %d",
			ErrInsufficientData, control.Impressions, test.Impressions)
	}

	n1 := float64(control.Impressions)
	n2 := float64(test.Impressions)
	p1 := control.ConversionRate
	p2 := test.ConversionRate

	// Pooled proportion under the null hypothesis p1 == p2
	pooled := float64(control.Conversions+test.Conversions) / (n1 + n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/n1 + 1/n2))

	z := 0.0
	if se > 0 && !math.IsNaN(se) {
		z = (p2 - p1) / se
	}

	pValue := TwoSidedPValue(z)

	result := &SignificanceResult{
		ControlVariant:  control.VariantID,
		TestVariant:     test.VariantID,
		ZScore:          z,
		PValue:          pValue,
		IsSignificant:   pValue < alpha,
		ConfidenceLevel: (1 - pValue) * 100,
		SampleSize:      SampleSize{Control: control.Impressions, Test: test.Impressions},
	}
	if p1 > 0 {
		result.Uplift = (p2 - p1) / p1 * 100
		result.UpliftDefined = true
	}
	return result, nil
}

// TwoSidedPValue returns P(|Z| >= |z|), clamped to [0, 1].
func TwoSidedPValue(z float64) float64 {
	p := 2 * upperTail(math.Abs(z))
	return math.Min(1, math.Max(0, p))
}

// upperTail approximates P(Z > x) for x >= 0 with the Zelen and Severo
// polynomial (Abramowitz and Stegun 26.2.17). Absolute error < 7.5e-8.
func upperTail(x float64) float64 {
	const (
		p  = 0.2316419
		b1 = 0.319381530
		b2 = -0.356563782
		b3 = 1.781477937
		b4 = -1.821255978
		b5 = 1.330274429
	)
	t := 1 / (1 + p*x)
	density := 0.3989422804014327 * math.Exp(-x*x/2)
	return density * t * (b1 + t*(b2+t*(b3+t*(b4+t*b5))))
}

// normalCDF approximates the cumulative distribution function
// of the standard normal distribution
func normalCDF(x float64) float64 {
	if x >= 0 {
		return 1 - upperTail(x)
	}
	return upperTail(-x)
}

// SignificanceTest performs a one-sided two-proportion z-test.
// Returns confidence level (0-1) that variant A beats variant B.
func SignificanceTest(aConv, aViews, bConv, bViews int) float64 {
	if aViews == 0 || bViews == 0 {
		return 0.5 // Need data from both variants
	}

	pA := float64(aConv) / float64(aViews)
	pB := float64(bConv) / float64(bViews)
	pooledP := float64(aConv+bConv) / float64(aViews+bViews)
	se := math.Sqrt(pooledP * (1 - pooledP) * (1/float64(aViews) + 1/float64(bViews)))

	if se == 0 || math.IsNaN(se) {
		switch {
		case pA > pB:
			return 1.0
		case pA < pB:
			return 0.0
		}
		return 0.5
	}

	return normalCDF((pA - pB) / se)
}

// Summary points at the best performing variant and how sure we are that
// it beats the runner up.
type Summary struct {
	Leading    string  `json:"leading"`
	RunnerUp   string  `json:"runnerUp"`
	Confidence float64 `json:"confidence"` // 0-1
	Confident  bool    `json:"confident"`  // >= 95%
}

// Summarize compares the variant with the highest conversion rate against
// the next best. The first variant wins ties.
func Summarize(perf []VariantPerformance) *Summary {
	if len(perf) == 0 {
		return &Summary{}
	}

	leading, runnerUp := 0, -1
	for i := 1; i < len(perf); i++ {
		switch {
		case perf[i].ConversionRate > perf[leading].ConversionRate:
			runnerUp, leading = leading, i
		case runnerUp < 0 || perf[i].ConversionRate > perf[runnerUp].ConversionRate:
			runnerUp = i
		}
	}

	s := &Summary{Leading: perf[leading].VariantID}
	if runnerUp < 0 {
		return s
	}
	s.RunnerUp = perf[runnerUp].VariantID
	s.Confidence = SignificanceTest(
		perf[leading].Conversions, perf[leading].Impressions,
		perf[runnerUp].Conversions, perf[runnerUp].Impressions,
	)
	s.Confident = s.Confidence >= 0.95
	return s
}
