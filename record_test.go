package levitate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	test "testing"

	"github.com/google/uuid"
	"nickandperla.net/levitate/gorkov"
)

func testResult(t *test.T) (*Result, *Problem) {
	p := testProblem(t, 7)
	config := testEvolutionConfig()
	config.Generations = 5
	res, err := RunEvolutionary(context.Background(), p, config)
	if err != nil {
		t.Fatalf("RunEvolutionary returned error: %v", err)
	}
	return res, p
}

func TestResultRecord(t *test.T) {
	res, p := testResult(t)
	rec := NewResultRecord(res, p)

	if _, err := uuid.Parse(rec.RunID); err != nil {
		t.Errorf("Run ID %q is not a UUID: %v", rec.RunID, err)
	}
	if rec.Driver != "evolutionary" || rec.Mask != "positions" || rec.NEmitters != 7 {
		t.Errorf("Unexpected header %+v", rec)
	}
	if rec.FrequencyHz != 40000 || rec.Constraints.MinSpacing != 0.005 {
		t.Errorf("Unexpected physics or constraints: %v %+v", rec.FrequencyHz, rec.Constraints)
	}
	if len(rec.BestPositions) != 7 || len(rec.BestPositions[0]) != 2 {
		t.Errorf("Expected 7 planar positions, got %v", rec.BestPositions)
	}
	if rec.BestFitness != res.BestFitness() || rec.ReferenceFitness != p.ReferenceScore.Fitness {
		t.Errorf("Fitness mismatch: %v/%v vs %v/%v", rec.BestFitness, rec.ReferenceFitness,
			res.BestFitness(), p.ReferenceScore.Fitness)
	}
	if len(rec.History) != res.Iterations {
		t.Errorf("Expected %d history records, got %d", res.Iterations, len(rec.History))
	}
}

func TestResultRecordJSON(t *test.T) {
	res, p := testResult(t)
	rec := NewResultRecord(res, p)

	var buf bytes.Buffer
	if err := rec.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON returned error: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatalf("Record is not valid JSON: %v", err)
	}
	for _, key := range []string{"run_id", "timestamp", "driver", "n_emitters", "frequency_hz", "constraints",
		"best_fitness", "best_positions", "valid", "constraint_penalty", "reference_fitness",
		"improvement_pct", "stop_reason", "history"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("Record is missing %q", key)
		}
	}
	constraints := raw["constraints"].(map[string]any)
	if _, ok := constraints["min_spacing_m"]; !ok {
		t.Errorf("Constraints are missing min_spacing_m: %v", constraints)
	}

	back, err := ReadResultRecord(&buf)
	if err != nil {
		t.Fatalf("ReadResultRecord returned error: %v", err)
	}
	a, err := back.Array()
	if err != nil {
		t.Fatalf("Array returned error: %v", err)
	}
	for i, pos := range a.Positions {
		if pos != res.Best.Array.Positions[i] {
			t.Errorf("Emitter %d changed from %v to %v", i, res.Best.Array.Positions[i], pos)
		}
	}
}

func TestRecordNonPlanarPositions(t *test.T) {
	positions := encodePositions([]gorkov.Vec3{{X: 1}, {Y: 2, Z: 3}})
	if len(positions[0]) != 3 || positions[1][2] != 3 {
		t.Errorf("Expected xyz triples, got %v", positions)
	}
	if _, err := decodePositions([][]float64{{1}}); err == nil {
		t.Errorf("Single coordinate should not decode")
	}
}

func TestReadResultRecordEmpty(t *test.T) {
	if _, err := ReadResultRecord(strings.NewReader(`{"run_id": "x"}`)); !errors.Is(err, ErrNoEmitters) {
		t.Errorf("Expected ErrNoEmitters, got %v", err)
	}
	if _, err := ReadResultRecord(strings.NewReader(`{`)); err == nil {
		t.Errorf("Truncated JSON should not decode")
	}
}
