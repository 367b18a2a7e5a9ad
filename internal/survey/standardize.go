package survey

import (
	"fmt"
	"math"
)

// BandWeight is one age band of the reference population.
type BandWeight struct {
	Band   string
	Weight float64
}

// StdPopulation is the 2000 US standard population distribution over
// the seven adult age bands.  The published weights are shares of the
// full population, so they are renormalized over the bands actually
// present before use.
var StdPopulation = []BandWeight{
	{"20-29", 0.1318},
	{"30-39", 0.1342},
	{"40-49", 0.1354},
	{"50-59", 0.0933},
	{"60-69", 0.0640},
	{"70-79", 0.0463},
	{"80+", 0.0229},
}

// AgeBands returns the band labels in ascending age order.
func AgeBands() []string {
	out := make([]string, len(StdPopulation))
	for i, b := range StdPopulation {
		out[i] = b.Band
	}
	return out
}

// AgeBand assigns an age in years to its standardization band, or ""
// for ages below 20.
func AgeBand(age float64) string {
	switch {
	case math.IsNaN(age) || age < 20:
		return ""
	case age < 30:
		return "20-29"
	case age < 40:
		return "30-39"
	case age < 50:
		return "40-49"
	case age < 60:
		return "50-59"
	case age < 70:
		return "60-69"
	case age < 80:
		return "70-79"
	default:
		return "80+"
	}
}

// Standardize combines per-band prevalence estimates into a directly
// age-standardized estimate.  The standard weights are renormalized
// over the bands provided; the combined standard error assumes
// independence across bands, SE = sqrt(sum w_i^2 SE_i^2).
func Standardize(byBand map[string]Estimate) (Estimate, error) {

	if len(byBand) == 0 {
		return Estimate{}, fmt.Errorf("survey: no age bands to standardize")
	}

	wtot := 0.0
	for _, b := range StdPopulation {
		if _, ok := byBand[b.Band]; ok {
			wtot += b.Weight
		}
	}
	if wtot <= 0 {
		return Estimate{}, fmt.Errorf("survey: age bands do not match the standard population")
	}

	var out Estimate
	var varsum float64
	for _, b := range StdPopulation {
		e, ok := byBand[b.Band]
		if !ok {
			continue
		}
		w := b.Weight / wtot
		out.Value += w * e.Value
		varsum += w * w * e.SE * e.SE
		out.N += e.N
		out.Cases += e.Cases
	}
	out.SE = math.Sqrt(varsum)
	out.Lo = math.Max(0, out.Value-z975*out.SE)
	out.Hi = math.Min(1, out.Value+z975*out.SE)
	return out, nil
}
