package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// SyncLog is the append-only record of one engine run. A row stuck in
// started with no completed_at means the process died mid-run; monitoring
// treats that as "stuck", never as silently dropped.
type SyncLog struct {
	ID             uint       `gorm:"primary_key" json:"id"`
	Store          string     `gorm:"index;size:64;not null" json:"store"`
	SyncType       string     `gorm:"size:20;not null" json:"sync_type"`
	Status         string     `gorm:"size:20;not null" json:"status"`
	ItemsProcessed int        `json:"items_processed"`
	ItemsSucceeded int        `json:"items_succeeded"`
	ItemsFailed    int        `json:"items_failed"`
	ErrorMessage   string     `gorm:"type:text" json:"error_message"`
	Details        []byte     `gorm:"type:json" json:"details"`
	StartedAt      *time.Time `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	DurationMs     int64      `json:"duration_ms"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (SyncLog) TableName() string {
	return "sync_log"
}

// RunStats is the per-run counter set. Skipped counts idempotency skips and
// deliberate exclusions separately from failures.
type RunStats struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// ItemError is one per-SKU or per-order failure preserved in the run details.
type ItemError struct {
	Code    string `json:"code"`
	Item    string `json:"item"`
	Message string `json:"message"`
}

var ErrRunAlreadyFinished = errors.New("sync run already has a terminal status")

// RunLog is the gorm-backed run logger.
type RunLog struct {
	DB *gorm.DB
}

func (r *RunLog) StartRun(ctx context.Context, store string, syncType string) (uint, error) {
	now := time.Now()
	entry := SyncLog{
		Store:     store,
		SyncType:  syncType,
		Status:    RunStatusStarted,
		StartedAt: &now,
	}
	if err := r.DB.WithContext(ctx).Create(&entry).Error; err != nil {
		return 0, err
	}
	return entry.ID, nil
}

// CompleteRun writes the terminal row for a finished run. The guarded WHERE
// keeps the history append-only: a run that already completed or failed is
// never rewritten.
func (r *RunLog) CompleteRun(ctx context.Context, runId uint, stats RunStats, itemErrors []ItemError) error {
	details, _ := json.Marshal(itemErrors)
	return r.finish(ctx, runId, map[string]interface{}{
		"status":          RunStatusCompleted,
		"items_processed": stats.Processed,
		"items_succeeded": stats.Succeeded,
		"items_failed":    stats.Failed,
		"details":         details,
	})
}

func (r *RunLog) FailRun(ctx context.Context, runId uint, runErr error) error {
	message := ""
	if runErr != nil {
		message = runErr.Error()
	}
	return r.finish(ctx, runId, map[string]interface{}{
		"status":        RunStatusFailed,
		"error_message": message,
	})
}

func (r *RunLog) finish(ctx context.Context, runId uint, update map[string]interface{}) error {
	var entry SyncLog
	if err := r.DB.WithContext(ctx).Where("id = ?", runId).Take(&entry).Error; err != nil {
		return err
	}
	if entry.CompletedAt != nil {
		return ErrRunAlreadyFinished
	}

	now := time.Now()
	update["completed_at"] = now
	if entry.StartedAt != nil {
		update["duration_ms"] = now.Sub(*entry.StartedAt).Milliseconds()
	}

	result := r.DB.WithContext(ctx).Model(&SyncLog{}).
		Where("id = ? AND completed_at IS NULL", runId).
		Updates(update)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRunAlreadyFinished
	}
	return nil
}

// RecentRuns returns run history for one store, newest first.
func (r *RunLog) RecentRuns(ctx context.Context, store string, limit int) ([]SyncLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []SyncLog
	err := r.DB.WithContext(ctx).
		Where("store = ?", store).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// LastSuccessfulRun returns the newest completed run of the given type, or
// nil when the store has never completed one.
func (r *RunLog) LastSuccessfulRun(ctx context.Context, store string, syncType string) (*SyncLog, error) {
	var entry SyncLog
	err := r.DB.WithContext(ctx).
		Where("store = ? AND sync_type = ? AND status = ?", store, syncType, RunStatusCompleted).
		Order("id DESC").
		Take(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}
