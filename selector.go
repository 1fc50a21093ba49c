package levitate

import "sort"

// Selector picks the parents of the next generation.
type Selector struct {
	Elites int
}

func NewSelector(elites int) *Selector {
	return &Selector{Elites: elites}
}

// maskedFitness replaces the fitness of invalid candidates with a sentinel
// so they rank below every valid one.
func maskedFitness(scores []Score) []float64 {
	masked := make([]float64, len(scores))
	for i, s := range scores {
		if s.Valid {
			masked[i] = s.Fitness
		} else {
			masked[i] = invalidFitness
		}
	}
	return masked
}

// Select returns the indices of the top Elites candidates by masked
// fitness, best first. Invalid candidates are never returned, so fewer than
// Elites indices (possibly none) come back when few are valid. Ties keep
// population order.
func (s *Selector) Select(scores []Score) []int {
	masked := maskedFitness(scores)
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return masked[order[a]] > masked[order[b]]
	})

	count := s.Elites
	if count > len(order) {
		count = len(order)
	}
	elites := make([]int, 0, count)
	for _, idx := range order[:count] {
		if !scores[idx].Valid {
			break
		}
		elites = append(elites, idx)
	}
	return elites
}
