package patch

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/lucsky/cuid"

	"github.com/bbernstein/lacylights-motion/internal/database/models"
	"github.com/bbernstein/lacylights-motion/internal/database/repositories"
	"github.com/bbernstein/lacylights-motion/internal/description"
	"github.com/bbernstein/lacylights-motion/internal/fixture"
	"github.com/bbernstein/lacylights-motion/internal/services/simulation"
)

var (
	// ErrProfileNotFound is returned when a patch references an unknown profile.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrModeNotFound is returned when a patch names a mode the profile lacks.
	ErrModeNotFound = errors.New("mode not found")
	// ErrPatchNotFound is returned for unknown patch IDs.
	ErrPatchNotFound = errors.New("patch not found")
	// ErrProfileInUse is returned when deleting a profile that is still patched.
	ErrProfileInUse = errors.New("profile is still patched")
)

// Engine runs fixtures.
type Engine interface {
	AddFixture(f *fixture.Fixture) error
	RemoveFixture(id string) error
}

// Loader builds fixtures from stored patches.
type Loader struct {
	profileRepo   *repositories.ProfileRepository
	patchRepo     *repositories.PatchRepository
	skipThreshold float64
}

// NewLoader creates a new Loader. skipThreshold applies to patches that do
// not set their own.
func NewLoader(profileRepo *repositories.ProfileRepository, patchRepo *repositories.PatchRepository, skipThreshold float64) *Loader {
	if skipThreshold <= 0 {
		skipThreshold = fixture.DefaultSkipThreshold
	}
	return &Loader{
		profileRepo:   profileRepo,
		patchRepo:     patchRepo,
		skipThreshold: skipThreshold,
	}
}

// BuildFixture parses the patch's profile and creates its fixture.
func (l *Loader) BuildFixture(ctx context.Context, patch *models.FixturePatch) (*fixture.Fixture, error) {
	profile := patch.Profile
	if profile == nil {
		var err error
		profile, err = l.profileRepo.FindByID(ctx, patch.ProfileID)
		if err != nil {
			return nil, fmt.Errorf("failed to load profile: %w", err)
		}
		if profile == nil {
			return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, patch.ProfileID)
		}
	}

	desc, err := description.Parse([]byte(profile.Document))
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", profile.Name, err)
	}
	mode, ok := desc.Mode(patch.Mode)
	if !ok {
		return nil, fmt.Errorf("%w: %q in profile %s", ErrModeNotFound, patch.Mode, profile.Name)
	}

	opts := fixture.DefaultOptions()
	opts.InvertPan = patch.InvertPan
	opts.InvertTilt = patch.InvertTilt
	opts.Interpolation = patch.Interpolation
	opts.SkipThreshold = l.skipThreshold
	if patch.SkipThreshold != nil {
		opts.SkipThreshold = *patch.SkipThreshold
	}

	name := patch.Name
	if name == "" {
		name = profile.Name
	}
	return fixture.New(patch.ID, name, mode, patch.Universe, patch.StartChannel, opts)
}

// LoadAll adds every stored patch to the engine. Patches that cannot be built
// are logged and skipped. It returns the number of fixtures added.
func (l *Loader) LoadAll(ctx context.Context, engine Engine) (int, error) {
	patches, err := l.patchRepo.FindAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load patches: %w", err)
	}

	loaded := 0
	for i := range patches {
		patch := &patches[i]
		f, err := l.BuildFixture(ctx, patch)
		if err != nil {
			log.Printf("⚠️  Skipping patch %s: %v", patch.ID, err)
			continue
		}
		if err := engine.AddFixture(f); err != nil {
			log.Printf("⚠️  Skipping patch %s: %v", patch.ID, err)
			continue
		}
		loaded++
	}

	log.Printf("🎭 Loaded %d of %d patched fixtures", loaded, len(patches))
	return loaded, nil
}

// CreatePatch validates and stores a patch, then starts its fixture.
func (l *Loader) CreatePatch(ctx context.Context, patch *models.FixturePatch, engine Engine) (*fixture.Fixture, error) {
	if patch.ID == "" {
		patch.ID = cuid.New()
	}

	f, err := l.BuildFixture(ctx, patch)
	if err != nil {
		return nil, err
	}
	if err := l.patchRepo.Create(ctx, patch); err != nil {
		return nil, fmt.Errorf("failed to store patch: %w", err)
	}
	if err := engine.AddFixture(f); err != nil {
		return nil, err
	}
	return f, nil
}

// DeletePatch removes a patch and stops its fixture.
func (l *Loader) DeletePatch(ctx context.Context, id string, engine Engine) error {
	patch, err := l.patchRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load patch: %w", err)
	}
	if patch == nil {
		return fmt.Errorf("%w: %s", ErrPatchNotFound, id)
	}

	if err := l.patchRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete patch: %w", err)
	}
	if err := engine.RemoveFixture(id); err != nil && !errors.Is(err, simulation.ErrFixtureNotFound) {
		return err
	}
	return nil
}

// UpdatePatch replaces a stored patch and restarts its fixture. The patch is
// validated first; an invalid patch leaves the stored one running.
func (l *Loader) UpdatePatch(ctx context.Context, patch *models.FixturePatch, engine Engine) (*fixture.Fixture, error) {
	existing, err := l.patchRepo.FindByID(ctx, patch.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load patch: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: %s", ErrPatchNotFound, patch.ID)
	}
	patch.CreatedAt = existing.CreatedAt
	patch.Profile = nil

	f, err := l.BuildFixture(ctx, patch)
	if err != nil {
		return nil, err
	}
	if err := l.patchRepo.Update(ctx, patch); err != nil {
		return nil, fmt.Errorf("failed to store patch: %w", err)
	}
	if err := engine.RemoveFixture(patch.ID); err != nil && !errors.Is(err, simulation.ErrFixtureNotFound) {
		return nil, err
	}
	if err := engine.AddFixture(f); err != nil {
		return nil, err
	}
	return f, nil
}

// PatchesInUniverse returns the stored patches of a universe by address.
func (l *Loader) PatchesInUniverse(ctx context.Context, universe int) ([]models.FixturePatch, error) {
	return l.patchRepo.FindByUniverse(ctx, universe)
}

// DeleteProfile removes a profile that no patch uses.
func (l *Loader) DeleteProfile(ctx context.Context, id string) error {
	profile, err := l.profileRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	if profile == nil {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}

	count, err := l.profileRepo.CountPatches(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to count patches: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: %s has %d patches", ErrProfileInUse, profile.Name, count)
	}
	return l.profileRepo.Delete(ctx, id)
}
