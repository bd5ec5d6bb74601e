// Package storage persists the server's mutable runtime state: tuning
// settings, folder overrides and the active model selection survive
// restarts, and every render is recorded for inspection.
package storage

import (
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"xtts-server-go/internal/platform/errors"
)

// SettingsRecord is the single-row persisted tuning snapshot, stored as the
// wire JSON so the schema never chases individual knobs.
type SettingsRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Payload   string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// FolderOverride remembers a folder root changed at runtime, keyed by kind
// ("speaker", "output", ...).
type FolderOverride struct {
	ID        uint   `gorm:"primaryKey"`
	Kind      string `gorm:"type:varchar(32);uniqueIndex;not null"`
	Path      string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// ModelSelection tracks the model switched to via the API.
type ModelSelection struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"type:varchar(255);not null"`
	UpdatedAt time.Time
}

// SynthesisRecord is one completed render.
type SynthesisRecord struct {
	ID         uint   `gorm:"primaryKey"`
	Speaker    string `gorm:"index"`
	Language   string `gorm:"type:varchar(16);index"`
	TextLength int
	OutputPath string `gorm:"type:text"`
	Cached     bool
	DurationMS int64
	CreatedAt  time.Time `gorm:"index"`
}

// StateStore wraps the sqlite database holding runtime state.
type StateStore struct {
	db *gorm.DB
}

// Open creates or opens the state database under dataDir.
func Open(dataDir string) (*StateStore, error) {
	const op = "storage.open"

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.Wrap(errors.KindStorage, op, "create data directory", err)
	}

	dbPath := filepath.Join(dataDir, "xtts.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, op, "open database", err)
	}

	if err := db.AutoMigrate(&SettingsRecord{}, &FolderOverride{}, &ModelSelection{}, &SynthesisRecord{}); err != nil {
		return nil, errors.Wrap(errors.KindStorage, op, "migrate database", err)
	}

	return &StateStore{db: db}, nil
}

// OpenInMemory opens a throwaway store, used by tests.
func OpenInMemory() (*StateStore, error) {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.open", "open in-memory database", err)
	}
	if err := db.AutoMigrate(&SettingsRecord{}, &FolderOverride{}, &ModelSelection{}, &SynthesisRecord{}); err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.open", "migrate database", err)
	}
	return &StateStore{db: db}, nil
}

func (s *StateStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveSettings upserts the single settings row.
func (s *StateStore) SaveSettings(payload string) error {
	const op = "storage.save_settings"

	record := SettingsRecord{ID: 1, Payload: payload}
	if err := s.db.Save(&record).Error; err != nil {
		return errors.Wrap(errors.KindStorage, op, "persist settings", err)
	}
	return nil
}

// LoadSettings returns the persisted settings payload, or ok=false when
// nothing was ever saved.
func (s *StateStore) LoadSettings() (string, bool, error) {
	const op = "storage.load_settings"

	var record SettingsRecord
	err := s.db.First(&record, 1).Error
	if err == gorm.ErrRecordNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(errors.KindStorage, op, "read settings", err)
	}
	return record.Payload, true, nil
}

// SaveFolder upserts a folder override by kind.
func (s *StateStore) SaveFolder(kind, path string) error {
	const op = "storage.save_folder"

	var record FolderOverride
	err := s.db.Where("kind = ?", kind).First(&record).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		record = FolderOverride{Kind: kind, Path: path}
	case err != nil:
		return errors.Wrap(errors.KindStorage, op, "read folder override", err)
	default:
		record.Path = path
	}
	if err := s.db.Save(&record).Error; err != nil {
		return errors.Wrap(errors.KindStorage, op, "persist folder override", err)
	}
	return nil
}

// Folders returns all persisted folder overrides as kind→path.
func (s *StateStore) Folders() (map[string]string, error) {
	const op = "storage.folders"

	var records []FolderOverride
	if err := s.db.Find(&records).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, op, "read folder overrides", err)
	}
	out := make(map[string]string, len(records))
	for _, r := range records {
		out[r.Kind] = r.Path
	}
	return out, nil
}

// SetActiveModel upserts the single model selection row.
func (s *StateStore) SetActiveModel(name string) error {
	const op = "storage.set_active_model"

	record := ModelSelection{ID: 1, Name: name}
	if err := s.db.Save(&record).Error; err != nil {
		return errors.Wrap(errors.KindStorage, op, "persist model selection", err)
	}
	return nil
}

// ActiveModel returns the persisted model selection, or ok=false.
func (s *StateStore) ActiveModel() (string, bool, error) {
	const op = "storage.active_model"

	var record ModelSelection
	err := s.db.First(&record, 1).Error
	if err == gorm.ErrRecordNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(errors.KindStorage, op, "read model selection", err)
	}
	return record.Name, true, nil
}

// RecordSynthesis appends one render to the history.
func (s *StateStore) RecordSynthesis(rec SynthesisRecord) error {
	if err := s.db.Create(&rec).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "storage.record_synthesis", "append synthesis record", err)
	}
	return nil
}

// RecentSyntheses lists the newest renders, most recent first.
func (s *StateStore) RecentSyntheses(limit int) ([]SynthesisRecord, error) {
	const op = "storage.recent_syntheses"

	if limit <= 0 {
		limit = 50
	}
	var records []SynthesisRecord
	if err := s.db.Order("id desc").Limit(limit).Find(&records).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, op, "read synthesis history", err)
	}
	return records, nil
}

// Stats summarizes the render history for the health endpoint.
func (s *StateStore) Stats() (total int64, cached int64, err error) {
	const op = "storage.stats"

	if err = s.db.Model(&SynthesisRecord{}).Count(&total).Error; err != nil {
		return 0, 0, errors.Wrap(errors.KindStorage, op, "count renders", err)
	}
	if err = s.db.Model(&SynthesisRecord{}).Where("cached = ?", true).Count(&cached).Error; err != nil {
		return 0, 0, errors.Wrap(errors.KindStorage, op, "count cached renders", err)
	}
	return total, cached, nil
}
