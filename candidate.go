package levitate

import (
	cp "github.com/jinzhu/copier"
)

// Candidate is one configuration under search. Score is filled in when the
// objective evaluates it.
type Candidate struct {
	Array      *EmitterArray
	Score      Score
	Evaluated  bool
	Generation int
}

func NewCandidate(a *EmitterArray, generation int) *Candidate {
	return &Candidate{Array: a, Generation: generation}
}

func (c *Candidate) Fitness() float64 {
	return c.Score.Fitness
}

func (c *Candidate) Penalty() float64 {
	return c.Score.Penalty
}

func (c *Candidate) Valid() bool {
	return c.Evaluated && c.Score.Valid
}

func (c *Candidate) SetScore(s Score) {
	c.Score = s
	c.Evaluated = true
}

// Clone snapshots the candidate; the copy shares no positions or phases.
func (c *Candidate) Clone() *Candidate {
	clone := &Candidate{}
	cp.CopyWithOption(clone, c, cp.Option{DeepCopy: true})
	return clone
}
