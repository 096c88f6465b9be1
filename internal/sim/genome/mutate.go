package genome

import "math/rand/v2"

// Mutator produces child genomes on reproduction. Probability is the
// chance that the child differs from the parent in exactly one gene;
// genome length is always preserved.
type Mutator struct {
	Probability float64
}

// Reproduce copies the parent genome and, with the configured
// probability, replaces one uniformly chosen gene with a freshly sampled
// valid gene. All randomness is drawn from r so the total ordering of
// draws stays reproducible for a fixed seed.
func (m Mutator) Reproduce(parent Genome, r *rand.Rand) Genome {
	child := parent.Clone()
	if len(child) == 0 {
		return child
	}
	if r.Float64() >= m.Probability {
		return child
	}
	idx := r.IntN(len(child))
	child[idx] = RandomGene(r, len(child))
	return child
}
