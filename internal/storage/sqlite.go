package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/himanishpuri/doaeval/pkg/models"
)

const DefaultDBFile = "doaeval.sqlite3"
const errDBClientNil = "db client is nil"

var ErrRunNotFound = errors.New("run not found")

// DBClient stores sweep runs and their per-scenario metrics.
type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

type Run struct {
	ID           string `gorm:"primaryKey;type:varchar(36)"`
	Dataset      string `gorm:"index:idx_run_dataset" json:"dataset"`
	Checkpoint   string `json:"checkpoint"`
	ConfigDigest string `gorm:"type:varchar(64)" json:"config_digest"`
	Scenarios    int    `json:"scenarios"`
	StartedAt    time.Time
	FinishedAt   *time.Time
}

type ScenarioResult struct {
	ID            uint    `gorm:"primaryKey;autoIncrement"`
	RunID         string  `gorm:"type:varchar(36);uniqueIndex:idx_run_scenario,priority:1" json:"run_id"`
	Room          int     `gorm:"uniqueIndex:idx_run_scenario,priority:2" json:"room"`
	ReverbPercent int     `gorm:"uniqueIndex:idx_run_scenario,priority:3" json:"reverb_percent"`
	NumSamples    int     `json:"num_samples"`
	NumFrames     int     `json:"num_frames"`
	DurationSec   float64 `json:"duration_sec"`
	VoicedFrames  int     `json:"voiced_frames"`
	VoicedPercent float64 `json:"voiced_percent"`
	MAEDegrees    float64 `json:"mae_degrees"`
	Accuracy      float64 `json:"accuracy"`
	FigurePath    string  `json:"figure_path"`
	ElapsedMs     int64   `json:"elapsed_ms"`
	CreatedAt     time.Time
}

func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("DOAEVAL_RESULTS_DB")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_foreign_keys=on"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Run{}, &ScenarioResult{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// CreateRun registers a sweep before its first scenario is recorded.
func (c *DBClient) CreateRun(run models.Run) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	row := Run{
		ID:           run.ID,
		Dataset:      run.Dataset,
		Checkpoint:   run.Checkpoint,
		ConfigDigest: run.ConfigDigest,
		StartedAt:    run.StartedAt,
	}
	if err := c.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("creating run: %w", err)
	}
	return nil
}

// FinishRun stamps the run with its completion time and scenario count.
func (c *DBClient) FinishRun(runID string, scenarios int) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	now := time.Now()
	res := c.DB.Model(&Run{}).Where("id = ?", runID).Updates(map[string]interface{}{
		"scenarios":   scenarios,
		"finished_at": &now,
	})
	if res.Error != nil {
		return fmt.Errorf("finishing run: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// RecordScenario stores one scenario's metrics. Recording the same scenario
// twice for a run replaces the earlier row.
func (c *DBClient) RecordScenario(r models.ScenarioResult) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	row := ScenarioResult{
		RunID:         r.RunID,
		Room:          r.Scenario.Room,
		ReverbPercent: r.Scenario.ReverbPercent,
		NumSamples:    r.NumSamples,
		NumFrames:     r.NumFrames,
		DurationSec:   r.DurationSec,
		VoicedFrames:  r.VoicedFrames,
		VoicedPercent: r.VoicedPercent,
		MAEDegrees:    r.MAEDegrees,
		Accuracy:      r.Accuracy,
		FigurePath:    r.FigurePath,
		ElapsedMs:     r.Elapsed.Milliseconds(),
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ? AND room = ? AND reverb_percent = ?", row.RunID, row.Room, row.ReverbPercent).
			Delete(&ScenarioResult{}).Error; err != nil {
			return err
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("recording scenario: %w", err)
		}
		return nil
	})
}

// ListRuns returns the most recent runs first; limit <= 0 returns all.
func (c *DBClient) ListRuns(limit int) ([]models.Run, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	q := c.DB.Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []Run
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	out := make([]models.Run, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Run{
			ID:           r.ID,
			Dataset:      r.Dataset,
			Checkpoint:   r.Checkpoint,
			ConfigDigest: r.ConfigDigest,
			StartedAt:    r.StartedAt,
			Scenarios:    r.Scenarios,
		})
	}
	return out, nil
}

// GetScenarioResults returns the scenarios of a run in sweep order.
func (c *DBClient) GetScenarioResults(runID string) ([]models.ScenarioResult, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var rows []ScenarioResult
	if err := c.DB.Where("run_id = ?", runID).Order("room ASC, reverb_percent ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying scenario results: %w", err)
	}
	out := make([]models.ScenarioResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.ScenarioResult{
			RunID:         r.RunID,
			Scenario:      models.Scenario{Room: r.Room, ReverbPercent: r.ReverbPercent},
			NumSamples:    r.NumSamples,
			NumFrames:     r.NumFrames,
			DurationSec:   r.DurationSec,
			VoicedFrames:  r.VoicedFrames,
			VoicedPercent: r.VoicedPercent,
			MAEDegrees:    r.MAEDegrees,
			Accuracy:      r.Accuracy,
			FigurePath:    r.FigurePath,
			Elapsed:       time.Duration(r.ElapsedMs) * time.Millisecond,
		})
	}
	return out, nil
}

// DeleteRun removes a run and all of its scenario rows.
func (c *DBClient) DeleteRun(runID string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&ScenarioResult{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", runID).Delete(&Run{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil
	})
}
