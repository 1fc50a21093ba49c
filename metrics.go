package levitate

import (
	"database/sql"
	"errors"
	"fmt"
)

// RunMetrics aggregates the stored runs of one driver.
type RunMetrics struct {
	Driver         string
	RunCount       uint
	ValidCount     uint
	BestFitness    float64
	AvgFitness     float64
	AvgImprovement float64
}

// QueryMetrics aggregates stored runs grouped by driver, ordered by driver
// name. Invalid runs count toward RunCount only.
func (p *Persistence) QueryMetrics() ([]RunMetrics, error) {
	rows, err := p.DB.Raw(`SELECT driver, COUNT(*),
		COALESCE(SUM(CASE WHEN valid THEN 1 ELSE 0 END), 0),
		COALESCE(MAX(CASE WHEN valid THEN best_fitness END), 0),
		COALESCE(AVG(CASE WHEN valid THEN best_fitness END), 0),
		COALESCE(AVG(CASE WHEN valid AND reference_fitness > 0
			THEN (best_fitness - reference_fitness) / reference_fitness * 100 END), 0)
		FROM runs
		GROUP BY driver
		ORDER BY driver`).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to query run metrics: %w", err)
	}
	defer rows.Close()

	var out []RunMetrics
	for rows.Next() {
		var m RunMetrics
		var count, valid int64
		if err := rows.Scan(&m.Driver, &count, &valid, &m.BestFitness, &m.AvgFitness, &m.AvgImprovement); err != nil {
			return nil, err
		}
		m.RunCount = uint(count)
		m.ValidCount = uint(valid)
		out = append(out, m)
	}
	return out, rows.Err()
}

// QueryBestRun finds the valid run with the highest fitness among runs with
// the given emitter count, history loaded. Returns nil, nil if there is none.
func (p *Persistence) QueryBestRun(emitters int) (*Run, error) {
	var id string
	row := p.DB.Raw(`SELECT uuid FROM runs
		WHERE emitters = ? AND valid
		ORDER BY best_fitness DESC
		LIMIT 1`, emitters).Row()
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p.LoadRun(id)
}
