/*
Package survey implements design-based estimation for the stratified,
clustered, weighted NHANES sample: Taylor-linearized prevalence with
subpopulation support, direct age standardization, and the
survey-weighted logistic trend model.

Variance estimation uses the with-replacement first-stage
approximation: linearized residuals are summed within primary
sampling units and their between-PSU spread is pooled over strata.  A
lonely stratum (a single PSU) is treated as a certainty stratum and
contributes no variance, rather than being dropped.
*/
package survey

import (
	"fmt"
	"math"
	"sort"
)

// z975 is the normal 97.5th percentile used for 95% intervals.
const z975 = 1.96

// Design encodes the (stratum, cluster, weight) structure over the
// analytic records.  It is a view over the assembled cohort; the
// caller owns the column slices.
type Design struct {
	weight []float64

	// cluster id per record
	rec []int

	// clusters grouped by stratum
	strata [][]int

	nClusters int
}

// NewDesign builds a design from parallel stratum, PSU and weight
// columns.  Weights must be positive and design variables observed;
// records violating that are expected to be filtered out beforehand.
func NewDesign(stratum, psu, weight []float64) (*Design, error) {

	n := len(weight)
	if len(stratum) != n || len(psu) != n {
		return nil, fmt.Errorf("survey: design columns differ in length")
	}
	if n == 0 {
		return nil, fmt.Errorf("survey: empty design")
	}

	type key struct{ s, c float64 }
	clusterID := make(map[key]int)
	strataID := make(map[float64][]int)
	d := &Design{weight: weight, rec: make([]int, n)}

	for i := 0; i < n; i++ {
		if math.IsNaN(stratum[i]) || math.IsNaN(psu[i]) {
			return nil, fmt.Errorf("survey: missing design variable at record %d", i)
		}
		if !(weight[i] > 0) {
			return nil, fmt.Errorf("survey: nonpositive weight at record %d", i)
		}
		k := key{stratum[i], psu[i]}
		id, ok := clusterID[k]
		if !ok {
			id = len(clusterID)
			clusterID[k] = id
			strataID[stratum[i]] = append(strataID[stratum[i]], id)
		}
		d.rec[i] = id
	}

	// Deterministic stratum order.
	svals := make([]float64, 0, len(strataID))
	for s := range strataID {
		svals = append(svals, s)
	}
	sort.Float64s(svals)
	for _, s := range svals {
		d.strata = append(d.strata, strataID[s])
	}
	d.nClusters = len(clusterID)

	return d, nil
}

// Len returns the number of records in the design.
func (d *Design) Len() int { return len(d.weight) }

// DF returns the conventional design degrees of freedom, clusters
// minus strata.
func (d *Design) DF() int { return d.nClusters - len(d.strata) }

// Estimate is one computed prevalence with its design-based
// uncertainty.
type Estimate struct {
	N     int
	Cases int
	Value float64
	SE    float64
	Lo    float64
	Hi    float64
}

// Prevalence computes the weighted mean of the 0/1 indicator y over
// the records where domain is true, with a Taylor-linearized standard
// error.  The full design is retained for variance estimation;
// records outside the domain contribute zero residuals.  A nil domain
// means all records.
func (d *Design) Prevalence(y []float64, domain []bool) (Estimate, error) {

	n := d.Len()
	if len(y) != n {
		return Estimate{}, fmt.Errorf("survey: outcome length %d != design length %d", len(y), n)
	}
	if domain != nil && len(domain) != n {
		return Estimate{}, fmt.Errorf("survey: domain length %d != design length %d", len(domain), n)
	}

	in := func(i int) bool { return domain == nil || domain[i] }

	var est Estimate
	var wsum, wy float64
	for i := 0; i < n; i++ {
		if !in(i) {
			continue
		}
		if math.IsNaN(y[i]) {
			return Estimate{}, fmt.Errorf("survey: missing outcome inside domain at record %d", i)
		}
		wsum += d.weight[i]
		wy += d.weight[i] * y[i]
		est.N++
		if y[i] == 1 {
			est.Cases++
		}
	}
	if wsum <= 0 {
		return Estimate{}, fmt.Errorf("survey: empty domain")
	}
	est.Value = wy / wsum

	// Linearized residuals of the ratio mean, summed per cluster.
	z := make([]float64, d.nClusters)
	for i := 0; i < n; i++ {
		if !in(i) {
			continue
		}
		z[d.rec[i]] += d.weight[i] * (y[i] - est.Value) / wsum
	}

	est.SE = math.Sqrt(d.clusterVariance1(z))
	est.Lo = math.Max(0, est.Value-z975*est.SE)
	est.Hi = math.Min(1, est.Value+z975*est.SE)
	return est, nil
}

// clusterVariance1 pools the between-cluster variance of scalar
// cluster totals over strata.
func (d *Design) clusterVariance1(z []float64) float64 {

	v := 0.0
	for _, clusters := range d.strata {
		nh := len(clusters)
		if nh < 2 {
			// Certainty stratum.
			continue
		}
		mean := 0.0
		for _, c := range clusters {
			mean += z[c]
		}
		mean /= float64(nh)
		ss := 0.0
		for _, c := range clusters {
			dd := z[c] - mean
			ss += dd * dd
		}
		v += float64(nh) / float64(nh-1) * ss
	}
	return v
}
