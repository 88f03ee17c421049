// Package repositories provides data access layer implementations.
package repositories

import (
	"context"

	"github.com/bbernstein/lacylights-motion/internal/database/models"
	"github.com/lucsky/cuid"
	"gorm.io/gorm"
)

// ProfileRepository handles fixture profile data access.
type ProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// FindAll returns all profiles.
func (r *ProfileRepository) FindAll(ctx context.Context) ([]models.FixtureProfile, error) {
	var profiles []models.FixtureProfile
	result := r.db.WithContext(ctx).
		Order("manufacturer ASC, name ASC").
		Find(&profiles)
	return profiles, result.Error
}

// FindByID returns a profile by ID.
func (r *ProfileRepository) FindByID(ctx context.Context, id string) (*models.FixtureProfile, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByName returns the first profile with the given name.
func (r *ProfileRepository) FindByName(ctx context.Context, name string) (*models.FixtureProfile, error) {
	return r.findOne(ctx, "name = ?", name)
}

// FindByHash returns the profile imported from a document with the given hash.
func (r *ProfileRepository) FindByHash(ctx context.Context, hash string) (*models.FixtureProfile, error) {
	return r.findOne(ctx, "source_hash = ?", hash)
}

func (r *ProfileRepository) findOne(ctx context.Context, query string, arg interface{}) (*models.FixtureProfile, error) {
	var profile models.FixtureProfile
	result := r.db.WithContext(ctx).Where(query, arg).First(&profile)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &profile, nil
}

// Create creates a new profile.
func (r *ProfileRepository) Create(ctx context.Context, profile *models.FixtureProfile) error {
	if profile.ID == "" {
		profile.ID = cuid.New()
	}
	return r.db.WithContext(ctx).Create(profile).Error
}

// Update updates an existing profile.
func (r *ProfileRepository) Update(ctx context.Context, profile *models.FixtureProfile) error {
	return r.db.WithContext(ctx).Save(profile).Error
}

// Delete deletes a profile and its patches.
func (r *ProfileRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.FixturePatch{}, "profile_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.FixtureProfile{}, "id = ?", id).Error
	})
}

// Count returns the number of profiles.
func (r *ProfileRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.FixtureProfile{}).Count(&count)
	return count, result.Error
}

// CountPatches returns the number of patches using a profile.
func (r *ProfileRepository) CountPatches(ctx context.Context, profileID string) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).
		Model(&models.FixturePatch{}).
		Where("profile_id = ?", profileID).
		Count(&count)
	return count, result.Error
}
