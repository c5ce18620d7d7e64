package keystore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Maphikza/sip-privacy-wallet/internal/logger"
)

// SQLiteEntry is one persisted blob.
type SQLiteEntry struct {
	gorm.Model
	Key   string `gorm:"uniqueIndex"`
	Value []byte
}

// SQLite stores blobs in a single gorm-managed table.
type SQLite struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) the database at dbPath.
func OpenSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %v", err)
		}
	}

	config := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Error),
	}

	db, err := gorm.Open(sqlite.Open(dbPath), config)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if err := db.AutoMigrate(&SQLiteEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %v", err)
	}

	logger.Debug("SQLite keystore initialized", "path", dbPath)
	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var entry SQLiteEntry
	result := s.db.WithContext(ctx).Where("key = ?", key).First(&entry)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return entry.Value, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry SQLiteEntry
		result := tx.Where("key = ?", key).First(&entry)
		if result.Error == nil {
			return tx.Model(&entry).Update("value", value).Error
		}
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return result.Error
		}
		return tx.Create(&SQLiteEntry{Key: key, Value: value}).Error
	})
}

// Delete removes the row for good so the unique key can be reused.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Unscoped().Where("key = ?", key).Delete(&SQLiteEntry{}).Error
}

// Close releases the underlying connection.
func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
