package levitate

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"nickandperla.net/levitate/gorkov"
	gorm "gorm.io/gorm"
)

type PersistenceConfig struct {
	Name          string   `toml:"name"`
	Path          string   `toml:"path"`
	SQLitePragmas []string `toml:"sqlite_pragmas"`
	SQLiteOptions []string `toml:"sqlite_options"`
}

type Persistence struct {
	Config *PersistenceConfig
	DB     *gorm.DB
}

// Run is a stored search result. Its history rows hang off RunID.
type Run struct {
	ID               uint
	UUID             string `gorm:"uniqueIndex"`
	CreatedAt        time.Time
	Driver           string
	Mask             string
	Emitters         int
	Frequency        float64
	MinSpacing       float64
	MaxSpread        float64
	MaxPerturbation  float64
	BestFitness      float64
	ReferenceFitness float64
	Penalty          float64
	Valid            bool
	StopReason       string
	Iterations       int
	Positions        []gorkov.Vec3 `gorm:"serializer:json"`
	Phases           []float64     `gorm:"serializer:json"`
	History          []HistoryRow
}

type HistoryRow struct {
	ID            uint
	RunID         uint `gorm:"index"`
	Iteration     int
	BestSoFar     float64
	CurrentBest   float64
	MeanValid     float64
	ValidCount    int
	Skipped       bool
	Reinitialized bool
}

func NewPersistence(config *PersistenceConfig) (*Persistence, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if len(config.Path) == 0 {
		return nil, fmt.Errorf("Path to database must be defined")
	}

	if len(config.Name) == 0 {
		return nil, fmt.Errorf("Name of database must be defined")
	}

	var query []string
	for _, prag := range config.SQLitePragmas {
		query = append(query, fmt.Sprintf("_pragma=%s", prag))
	}
	query = append(query, config.SQLiteOptions...)

	var path strings.Builder
	path.WriteString(filepath.Join(config.Path, config.Name))
	if len(query) > 0 {
		path.WriteRune('?')
		path.WriteString(strings.Join(query, "&"))
	}

	db, err := gorm.Open(sqlite.Open(path.String()), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	db = db.Session(&gorm.Session{PrepareStmt: true, CreateBatchSize: 1000})

	p := &Persistence{Config: config, DB: db}
	if err = p.initialize(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Persistence) initialize() error {
	return p.DB.AutoMigrate(&Run{}, &HistoryRow{})
}

func (p *Persistence) Shutdown() error {
	sqldb, err := p.DB.DB()
	if err != nil {
		return fmt.Errorf("Failed to retrieve raw DB: %w", err)
	}
	return sqldb.Close()
}

// SaveResult stores rec and its history in one transaction and returns the
// row ID of the run.
func (p *Persistence) SaveResult(rec *ResultRecord) (uint, error) {
	if rec == nil {
		return 0, fmt.Errorf("ResultRecord cannot be nil")
	}
	positions, err := decodePositions(rec.BestPositions)
	if err != nil {
		return 0, err
	}

	run := &Run{
		UUID:             rec.RunID,
		CreatedAt:        rec.Timestamp,
		Driver:           rec.Driver,
		Mask:             rec.Mask,
		Emitters:         rec.NEmitters,
		Frequency:        rec.FrequencyHz,
		MinSpacing:       rec.Constraints.MinSpacing,
		MaxSpread:        rec.Constraints.MaxSpread,
		MaxPerturbation:  rec.Constraints.MaxPerturbation,
		BestFitness:      rec.BestFitness,
		ReferenceFitness: rec.ReferenceFitness,
		Penalty:          rec.ConstraintPenalty,
		Valid:            rec.Valid,
		StopReason:       string(rec.StopReason),
		Iterations:       rec.Iterations,
		Positions:        positions,
		Phases:           rec.BestPhases,
		History:          make([]HistoryRow, len(rec.History)),
	}
	for i, h := range rec.History {
		run.History[i] = HistoryRow{
			Iteration:     h.Index,
			BestSoFar:     h.BestSoFar,
			CurrentBest:   h.CurrentBest,
			MeanValid:     h.MeanValid,
			ValidCount:    h.ValidCount,
			Skipped:       h.Skipped,
			Reinitialized: h.Reinitialized,
		}
	}

	if result := p.DB.Create(run); result.Error != nil {
		return 0, fmt.Errorf("Failed to call gorm.Create(): %w", result.Error)
	}
	return run.ID, nil
}

// LoadRun fetches a run by UUID with its history in iteration order.
func (p *Persistence) LoadRun(id string) (*Run, error) {
	var run Run
	result := p.DB.Preload("History", func(db *gorm.DB) *gorm.DB {
		return db.Order("iteration")
	}).Where("uuid = ?", id).First(&run)
	if result.Error != nil {
		return nil, fmt.Errorf("Failed to load run %s: %w", id, result.Error)
	}
	return &run, nil
}

// ListRuns returns every stored run, newest first, without history.
func (p *Persistence) ListRuns() ([]Run, error) {
	var runs []Run
	if result := p.DB.Order("created_at desc").Find(&runs); result.Error != nil {
		return nil, fmt.Errorf("Failed to list runs: %w", result.Error)
	}
	return runs, nil
}
