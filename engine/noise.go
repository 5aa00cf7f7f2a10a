package engine

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	"lukechampine.com/frand"

	"github.com/Etcaqab/lazuli/searcher"
)

// applyDirichletNoise mixes a Dirichlet(alpha) sample into the priors of a
// root position record: p := (1-eps)*p + eps*noise. The record must be a
// non-shareable clone; the shared table entry keeps its clean priors.
func applyDirichletNoise(low *searcher.LowNode, eps, alpha float64) {
	n := low.NumEdges()
	if n == 0 || eps <= 0 {
		return
	}

	gamma := distuv.Gamma{
		Alpha: alpha,
		Beta:  1,
		Src:   rand.NewSource(frand.Uint64n(1 << 62)),
	}
	sample := make([]float64, n)
	total := 0.0
	for i := range sample {
		sample[i] = gamma.Rand()
		total += sample[i]
	}
	if total <= 0 {
		return
	}

	for i := 0; i < n; i++ {
		edge := low.EdgeAt(uint16(i))
		p := (1-eps)*float64(edge.P()) + eps*sample[i]/total
		edge.SetP(float32(p))
	}
	low.SortEdges()
}
