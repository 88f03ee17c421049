package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bbernstein/lacylights-motion/internal/database/models"
	"github.com/lucsky/cuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingRepository stores small JSON documents, such as the last profile
// import status, by key.
type SettingRepository struct {
	db *gorm.DB
}

// NewSettingRepository creates a new SettingRepository.
func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// FindByKey returns a setting by key, or nil when it is not set.
func (r *SettingRepository) FindByKey(ctx context.Context, key string) (*models.Setting, error) {
	var setting models.Setting
	err := r.db.WithContext(ctx).Where("key = ?", key).Take(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

// Put stores value under key in a single statement. An existing setting
// keeps its ID.
func (r *SettingRepository) Put(ctx context.Context, key, value string) (*models.Setting, error) {
	setting := models.Setting{ID: cuid.New(), Key: key, Value: value}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
	if err != nil {
		return nil, err
	}
	return r.FindByKey(ctx, key)
}

// SaveJSON encodes v and stores it under key.
func (r *SettingRepository) SaveJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode setting %s: %w", key, err)
	}
	_, err = r.Put(ctx, key, string(data))
	return err
}

// LoadJSON decodes the setting stored under key into v. It reports false
// when the key is not set.
func (r *SettingRepository) LoadJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	setting, err := r.FindByKey(ctx, key)
	if err != nil || setting == nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(setting.Value), v); err != nil {
		return false, fmt.Errorf("failed to decode setting %s: %w", key, err)
	}
	return true, nil
}
