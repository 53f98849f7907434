package cache

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LocalEntry represents a row in the database.
type LocalEntry struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

type DatabaseStore struct {
	db *gorm.DB
}

func NewDatabaseStore(dsn string) (*DatabaseStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&LocalEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &DatabaseStore{db: db}, nil
}

func (ds *DatabaseStore) Get(key string) (string, error) {
	var entry LocalEntry
	err := ds.db.Where("key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return entry.Value, nil
}

// Set upserts the row for key.
func (ds *DatabaseStore) Set(key, value string) error {
	entry := LocalEntry{Key: key, Value: value}
	return ds.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

func (ds *DatabaseStore) Remove(key string) error {
	return ds.db.Delete(&LocalEntry{}, "key = ?", key).Error
}

// Clear deletes every row in the table.
func (ds *DatabaseStore) Clear() error {
	return ds.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&LocalEntry{}).Error
}

// Close closes the database connection.
func (ds *DatabaseStore) Close() error {
	sqlDB, err := ds.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
