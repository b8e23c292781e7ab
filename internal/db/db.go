package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/lojf/weatherbot/internal/bot"
	"github.com/lojf/weatherbot/internal/models"
)

// Journal is the SQLite-backed update journal.
type Journal struct {
	conn *gorm.DB
}

var _ bot.Journal = (*Journal)(nil)

// Open creates or opens the journal database at path.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("db: empty path")
	}
	conn, err := gorm.Open(sqlite.Open(path+"?_journal_mode=WAL&_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	// SQLite works best with a single writer; cap the pool accordingly.
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := conn.AutoMigrate(&models.ProcessedUpdate{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	return &Journal{conn: conn}, nil
}

func (j *Journal) Close() error {
	sqlDB, err := j.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (j *Journal) Seen(ctx context.Context, updateID int64) (bool, error) {
	var n int64
	err := j.conn.WithContext(ctx).
		Model(&models.ProcessedUpdate{}).
		Where("update_id = ?", updateID).
		Count(&n).Error
	return n > 0, err
}

func rowFor(e bot.JournalEntry) models.ProcessedUpdate {
	return models.ProcessedUpdate{
		UpdateID:  e.UpdateID,
		ChatID:    e.ChatID,
		Username:  e.Username,
		Text:      e.Text,
		Outcome:   string(e.Outcome),
		Delivered: e.Delivered,
	}
}

// Claim inserts e unless its update id is already journaled. Only the
// delivery whose insert lands gets true, so concurrent redeliveries of the
// same update are answered once.
func (j *Journal) Claim(ctx context.Context, e bot.JournalEntry) (bool, error) {
	row := rowFor(e)
	res := j.conn.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "update_id"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Record stores the outcome of e, creating the row if the claim was lost.
func (j *Journal) Record(ctx context.Context, e bot.JournalEntry) error {
	row := rowFor(e)
	return j.conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "update_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"outcome", "delivered"}),
		}).
		Create(&row).Error
}

// Recent returns the latest n journal rows, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]models.ProcessedUpdate, error) {
	var rows []models.ProcessedUpdate
	err := j.conn.WithContext(ctx).Order("id desc").Limit(n).Find(&rows).Error
	return rows, err
}

// JournalMode reports SQLite's journal_mode pragma.
func (j *Journal) JournalMode() (string, error) {
	var mode string
	err := j.conn.Raw("PRAGMA journal_mode").Scan(&mode).Error
	return mode, err
}
