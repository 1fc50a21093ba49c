package levitate

import (
	"fmt"
	"math/rand"
	"time"

	"nickandperla.net/levitate/gorkov"
)

var (
	ErrInvalidConfig error = fmt.Errorf("invalid configuration")
	ErrNoEmitters    error = fmt.Errorf("emitter array must hold at least one emitter")
	ErrShapeMismatch error = gorkov.ErrShapeMismatch
)

// newRand returns the random source of one run. If seed is 0, the current
// time is used (non-deterministic). A non-zero seed gives reproducible runs.
func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

type ViolationReason uint

type StopReason string

const (
	DefaultPenaltyWeight = 1e6
	DefaultRepairPasses  = 10
	invalidFitness       = -1e10
)

const (
	FailedSpacing      ViolationReason = 1
	FailedSpread       ViolationReason = 2
	FailedPerturbation ViolationReason = 4
)

const (
	StopCompleted StopReason = "completed"
	StopStagnant  StopReason = "stagnant"
	StopCancelled StopReason = "cancelled"
)

func (r ViolationReason) String() string {
	if r == 0 {
		return "valid"
	}
	var s string
	for _, f := range []struct {
		bit  ViolationReason
		name string
	}{
		{FailedSpacing, "spacing"},
		{FailedSpread, "spread"},
		{FailedPerturbation, "perturbation"},
	} {
		if r&f.bit == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += f.name
	}
	return s
}
