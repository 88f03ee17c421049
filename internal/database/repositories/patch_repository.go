package repositories

import (
	"context"

	"github.com/bbernstein/lacylights-motion/internal/database/models"
	"github.com/lucsky/cuid"
	"gorm.io/gorm"
)

// PatchRepository handles fixture patch data access.
type PatchRepository struct {
	db *gorm.DB
}

// NewPatchRepository creates a new PatchRepository.
func NewPatchRepository(db *gorm.DB) *PatchRepository {
	return &PatchRepository{db: db}
}

// FindAll returns all patches with their profiles, ordered by address.
func (r *PatchRepository) FindAll(ctx context.Context) ([]models.FixturePatch, error) {
	var patches []models.FixturePatch
	result := r.db.WithContext(ctx).
		Preload("Profile").
		Order("universe ASC, start_channel ASC").
		Find(&patches)
	return patches, result.Error
}

// FindByUniverse returns all patches in a universe.
func (r *PatchRepository) FindByUniverse(ctx context.Context, universe int) ([]models.FixturePatch, error) {
	var patches []models.FixturePatch
	result := r.db.WithContext(ctx).
		Where("universe = ?", universe).
		Order("start_channel ASC").
		Find(&patches)
	return patches, result.Error
}

// FindByID returns a patch by ID with its profile.
func (r *PatchRepository) FindByID(ctx context.Context, id string) (*models.FixturePatch, error) {
	var patch models.FixturePatch
	result := r.db.WithContext(ctx).Preload("Profile").First(&patch, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &patch, nil
}

// Create creates a new patch.
func (r *PatchRepository) Create(ctx context.Context, patch *models.FixturePatch) error {
	if patch.ID == "" {
		patch.ID = cuid.New()
	}
	return r.db.WithContext(ctx).Omit("Profile").Create(patch).Error
}

// Update updates an existing patch.
func (r *PatchRepository) Update(ctx context.Context, patch *models.FixturePatch) error {
	return r.db.WithContext(ctx).Omit("Profile").Save(patch).Error
}

// Delete deletes a patch by ID.
func (r *PatchRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.FixturePatch{}, "id = ?", id).Error
}
