package levitate

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"nickandperla.net/levitate/gorkov"
)

// GeometrySnapshot is one improvement of the best-ever configuration.
type GeometrySnapshot struct {
	Iteration       int         `json:"generation"`
	Fitness         float64     `json:"well_depth"`
	Positions       [][]float64 `json:"positions"`
	Phases          []float64   `json:"phases,omitempty"`
	VersusReference float64     `json:"improvement_vs_fol"`
	Valid           bool        `json:"valid"`
}

// ResultRecord is the persisted form of a Result.
type ResultRecord struct {
	RunID             string             `json:"run_id"`
	Timestamp         time.Time          `json:"timestamp"`
	Driver            string             `json:"driver"`
	Mask              string             `json:"mask"`
	NEmitters         int                `json:"n_emitters"`
	FrequencyHz       float64            `json:"frequency_hz"`
	Constraints       ConstraintConfig   `json:"constraints"`
	BestFitness       float64            `json:"best_fitness"`
	BestPositions     [][]float64        `json:"best_positions"`
	BestPhases        []float64          `json:"best_phases,omitempty"`
	Valid             bool               `json:"valid"`
	ConstraintPenalty float64            `json:"constraint_penalty"`
	ReferenceFitness  float64            `json:"reference_fitness"`
	ImprovementPct    float64            `json:"improvement_pct"`
	StopReason        StopReason         `json:"stop_reason"`
	Iterations        int                `json:"iterations"`
	ElapsedSeconds    float64            `json:"elapsed_seconds"`
	History           History            `json:"history"`
	BestGeometries    []GeometrySnapshot `json:"best_geometries,omitempty"`
}

func NewResultRecord(res *Result, p *Problem) *ResultRecord {
	rec := &ResultRecord{
		RunID:            uuid.NewString(),
		Timestamp:        time.Now().UTC(),
		Driver:           res.Driver,
		Mask:             res.Mask.String(),
		NEmitters:        p.Config.Emitters,
		FrequencyHz:      p.Config.Physics.Frequency,
		Constraints:      p.Config.Constraints,
		BestFitness:      res.BestFitness(),
		Valid:            res.Valid(),
		ReferenceFitness: res.Reference.Fitness(),
		ImprovementPct:   res.Improvement(),
		StopReason:       res.Stop,
		Iterations:       res.Iterations,
		ElapsedSeconds:   res.Elapsed.Seconds(),
		History:          res.History,
	}
	if rec.History == nil {
		rec.History = History{}
	}
	best := res.Best
	if best == nil {
		best = res.Reference
	}
	rec.BestPositions = encodePositions(best.Array.Positions)
	if best.Array.HasPhases() {
		rec.BestPhases = append([]float64(nil), best.Array.Phases...)
	}
	rec.ConstraintPenalty = best.Penalty()

	for _, imp := range res.Improvements {
		rec.BestGeometries = append(rec.BestGeometries, GeometrySnapshot{
			Iteration:       imp.Iteration,
			Fitness:         imp.Fitness,
			Positions:       encodePositions(imp.Array.Positions),
			Phases:          imp.Array.Phases,
			VersusReference: imp.VersusReference,
			Valid:           true,
		})
	}
	return rec
}

// encodePositions writes [x, y] pairs, or [x, y, z] triples when any
// emitter leaves the plane.
func encodePositions(positions []gorkov.Vec3) [][]float64 {
	planar := true
	for _, p := range positions {
		if p.Z != 0 {
			planar = false
			break
		}
	}
	out := make([][]float64, len(positions))
	for i, p := range positions {
		if planar {
			out[i] = []float64{p.X, p.Y}
		} else {
			out[i] = []float64{p.X, p.Y, p.Z}
		}
	}
	return out
}

func decodePositions(raw [][]float64) ([]gorkov.Vec3, error) {
	positions := make([]gorkov.Vec3, len(raw))
	for i, c := range raw {
		switch len(c) {
		case 2:
			positions[i] = gorkov.Vec3{X: c[0], Y: c[1]}
		case 3:
			positions[i] = gorkov.Vec3{X: c[0], Y: c[1], Z: c[2]}
		default:
			return nil, fmt.Errorf("position %d has %d coordinates, expected 2 or 3", i, len(c))
		}
		if !positions[i].IsFinite() {
			return nil, fmt.Errorf("position %d is not finite: %v", i, c)
		}
	}
	return positions, nil
}

// Array rebuilds the best configuration, e.g. to seed a follow-up search.
func (r *ResultRecord) Array() (*EmitterArray, error) {
	positions, err := decodePositions(r.BestPositions)
	if err != nil {
		return nil, err
	}
	return NewEmitterArray(positions, r.BestPhases)
}

func (r *ResultRecord) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode result record: %w", err)
	}
	return nil
}

func ReadResultRecord(r io.Reader) (*ResultRecord, error) {
	var rec ResultRecord
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode result record: %w", err)
	}
	if len(rec.BestPositions) == 0 {
		return nil, fmt.Errorf("result record %q: %w", rec.RunID, ErrNoEmitters)
	}
	return &rec, nil
}
