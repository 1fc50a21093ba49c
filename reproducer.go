package levitate

import (
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Reproducer refills a population from its elites by blend crossover,
// occasional mutation and repair.
type Reproducer struct {
	Constraints *ConstraintEngine
	Mutation    *Mutation
	Mask        ParameterMask
}

func NewReproducer(constraints *ConstraintEngine, mutation *Mutation, mask ParameterMask) *Reproducer {
	return &Reproducer{Constraints: constraints, Mutation: mutation, Mask: mask}
}

// Next builds a population of exactly size candidates. Elites carry over
// unchanged; every other slot is a child of two elites drawn uniformly with
// replacement.
func (rp *Reproducer) Next(elites []*Candidate, size, generation int, r *rand.Rand) *Population {
	pop := &Population{
		Candidates: make([]*Candidate, 0, size),
		Generation: generation,
	}
	for _, e := range elites {
		if len(pop.Candidates) == size {
			break
		}
		pop.Candidates = append(pop.Candidates, e)
	}
	for len(pop.Candidates) < size {
		p1 := elites[r.Intn(len(elites))]
		p2 := elites[r.Intn(len(elites))]
		pop.Candidates = append(pop.Candidates, NewCandidate(rp.Breed(p1.Array, p2.Array, r), generation))
	}
	return pop
}

// Breed blends two parents with a uniform weight, mutates and repairs.
func (rp *Reproducer) Breed(p1, p2 *EmitterArray, r *rand.Rand) *EmitterArray {
	child := crossover(p1, p2, r.Float64(), rp.Mask)
	rp.Mutation.Apply(child, r)
	if rp.Mask.Positions {
		child.Positions = rp.Constraints.Repair(child.Positions)
	}
	child.WrapPhases()
	return child
}

// Crossover returns alpha*p1 + (1-alpha)*p2 over planar positions and,
// when either parent has them, phases.
func Crossover(p1, p2 *EmitterArray, alpha float64) *EmitterArray {
	return crossover(p1, p2, alpha, Joint)
}

// crossover blends the parameters selected by mask; everything else is
// copied from p1. A parent crossed with itself is copied unchanged.
func crossover(p1, p2 *EmitterArray, alpha float64, mask ParameterMask) *EmitterArray {
	if p1 == p2 {
		return p1.Clone()
	}
	blend := ParameterMask{Positions: mask.Positions, Phases: mask.Phases && (p1.HasPhases() || p2.HasPhases())}
	x1, x2 := blend.Flatten(p1), blend.Flatten(p2)

	x := make([]float64, len(x1))
	floats.ScaleTo(x, alpha, x1)
	floats.AddScaled(x, 1-alpha, x2)

	child := p1.Clone()
	blend.Unflatten(child, x)
	return child
}
