package survey

import (
	"fmt"
	"math"

	"github.com/kshedden/statmodel/glm"
	"github.com/kshedden/statmodel/statmodel"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Coef is one fitted regression term with design-based uncertainty.
type Coef struct {
	Name string
	Est  float64
	SE   float64
	T    float64
	P    float64
}

// Logistic fits a weighted logistic regression of the 0/1 outcome y
// on the covariate columns x (which should include an explicit
// intercept), then replaces the model-based covariance with the
// Taylor-linearized sandwich under the design's stratum/PSU
// structure.  P-values use Student's t with clusters-minus-strata
// degrees of freedom.
func (d *Design) Logistic(y []float64, x [][]float64, names []string) ([]Coef, error) {

	n := d.Len()
	if len(y) != n {
		return nil, fmt.Errorf("survey: outcome length %d != design length %d", len(y), n)
	}
	if len(x) != len(names) {
		return nil, fmt.Errorf("survey: %d covariate columns for %d names", len(x), len(names))
	}
	for j, col := range x {
		if len(col) != n {
			return nil, fmt.Errorf("survey: covariate %s length %d != design length %d",
				names[j], len(col), n)
		}
	}

	params, err := d.fitMLE(y, x, names)
	if err != nil {
		return nil, err
	}

	cov, err := d.sandwich(y, x, params)
	if err != nil {
		return nil, err
	}

	df := float64(d.DF())
	out := make([]Coef, len(names))
	for j, na := range names {
		se := math.Sqrt(cov.At(j, j))
		c := Coef{Name: na, Est: params[j], SE: se}
		if se > 0 {
			c.T = c.Est / se
			c.P = twoSidedP(c.T, df)
		} else {
			c.T = math.NaN()
			c.P = math.NaN()
		}
		out[j] = c
	}
	return out, nil
}

// fitMLE obtains the weighted maximum-likelihood point estimates from
// the glm package.
func (d *Design) fitMLE(y []float64, x [][]float64, names []string) ([]float64, error) {

	data := make([][]float64, 0, len(x)+2)
	vnames := make([]string, 0, len(x)+2)
	data = append(data, y)
	vnames = append(vnames, "y")
	data = append(data, x...)
	vnames = append(vnames, names...)
	data = append(data, d.weight)
	vnames = append(vnames, "wt")

	ds := statmodel.NewDataset(data, vnames)

	c := glm.DefaultConfig()
	c.Family = glm.NewFamily(glm.BinomialFamily)
	c.WeightVar = "wt"

	model, err := glm.NewGLM(ds, "y", names, c)
	if err != nil {
		return nil, fmt.Errorf("survey: build logistic model: %w", err)
	}
	rslt := model.Fit()
	if rslt == nil {
		return nil, fmt.Errorf("survey: logistic fit failed")
	}

	params := rslt.Params()
	if len(params) != len(names) {
		return nil, fmt.Errorf("survey: fit returned %d parameters for %d covariates",
			len(params), len(names))
	}
	for _, p := range params {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, fmt.Errorf("survey: logistic fit did not converge")
		}
	}
	return params, nil
}

// sandwich computes A^{-1} B A^{-1}, where A is the weighted
// information and B pools cluster-summed score contributions over
// strata.
func (d *Design) sandwich(y []float64, x [][]float64, params []float64) (*mat.Dense, error) {

	n := d.Len()
	k := len(params)

	// Fitted probabilities.
	p := make([]float64, n)
	for i := 0; i < n; i++ {
		lp := 0.0
		for j := 0; j < k; j++ {
			lp += params[j] * x[j][i]
		}
		p[i] = 1 / (1 + math.Exp(-lp))
	}

	// Information A and per-cluster score totals.
	a := mat.NewDense(k, k, nil)
	z := mat.NewDense(d.nClusters, k, nil)
	for i := 0; i < n; i++ {
		w := d.weight[i]
		v := w * p[i] * (1 - p[i])
		u := w * (y[i] - p[i])
		c := d.rec[i]
		for j := 0; j < k; j++ {
			z.Set(c, j, z.At(c, j)+u*x[j][i])
			for l := j; l < k; l++ {
				a.Set(j, l, a.At(j, l)+v*x[j][i]*x[l][i])
			}
		}
	}
	for j := 0; j < k; j++ {
		for l := j + 1; l < k; l++ {
			a.Set(l, j, a.At(j, l))
		}
	}

	b := mat.NewDense(k, k, nil)
	zbar := make([]float64, k)
	dev := make([]float64, k)
	for _, clusters := range d.strata {
		nh := len(clusters)
		if nh < 2 {
			continue
		}
		for j := range zbar {
			zbar[j] = 0
		}
		for _, c := range clusters {
			for j := 0; j < k; j++ {
				zbar[j] += z.At(c, j)
			}
		}
		for j := range zbar {
			zbar[j] /= float64(nh)
		}
		f := float64(nh) / float64(nh-1)
		for _, c := range clusters {
			for j := 0; j < k; j++ {
				dev[j] = z.At(c, j) - zbar[j]
			}
			for j := 0; j < k; j++ {
				for l := 0; l < k; l++ {
					b.Set(j, l, b.At(j, l)+f*dev[j]*dev[l])
				}
			}
		}
	}

	var ainv mat.Dense
	if err := ainv.Inverse(a); err != nil {
		return nil, fmt.Errorf("survey: singular information matrix: %w", err)
	}

	var tmp, cov mat.Dense
	tmp.Mul(&ainv, b)
	cov.Mul(&tmp, &ainv)
	return &cov, nil
}

// twoSidedP is the two-sided tail probability of t under Student's t
// with df degrees of freedom, or the normal when df is not positive.
func twoSidedP(t, df float64) float64 {
	at := math.Abs(t)
	if df > 0 {
		dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
		return 2 * dist.CDF(-at)
	}
	norm := distuv.Normal{Mu: 0, Sigma: 1}
	return 2 * norm.CDF(-at)
}
