// Package patch imports fixture descriptions into the database and turns
// stored patches into running fixtures.
package patch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bbernstein/lacylights-motion/internal/database/models"
	"github.com/bbernstein/lacylights-motion/internal/database/repositories"
	"github.com/bbernstein/lacylights-motion/internal/description"
)

// ImportStatusKey is the setting holding the last directory import status.
const ImportStatusKey = "profiles.last_import"

// importConcurrency bounds concurrent file imports.
const importConcurrency = 4

// ImportStatus tracks the result of a directory import.
type ImportStatus struct {
	LastImportTime    time.Time `json:"lastImportTime"`
	Directory         string    `json:"directory"`
	TotalFiles        int       `json:"totalFiles"`
	SuccessfulImports int       `json:"successfulImports"`
	SkippedDuplicates int       `json:"skippedDuplicates"`
	FailedImports     int       `json:"failedImports"`
}

// Importer stores fixture descriptions as profiles.
type Importer struct {
	profileRepo *repositories.ProfileRepository
	settingRepo *repositories.SettingRepository
}

// NewImporter creates a new Importer. settingRepo may be nil.
func NewImporter(profileRepo *repositories.ProfileRepository, settingRepo *repositories.SettingRepository) *Importer {
	return &Importer{
		profileRepo: profileRepo,
		settingRepo: settingRepo,
	}
}

// ImportBytes validates a YAML description and stores it. A document that was
// already imported returns the existing profile with created false. A changed
// document for a profile previously imported from the same sourcePath
// replaces that profile in place, so its patches keep working.
func (i *Importer) ImportBytes(ctx context.Context, data []byte, sourcePath string) (profile *models.FixtureProfile, created bool, err error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	existing, err := i.profileRepo.FindByHash(ctx, hash)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up profile: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	desc, err := description.Parse(data)
	if err != nil {
		return nil, false, err
	}

	if sourcePath != "" {
		previous, err := i.profileRepo.FindByName(ctx, desc.Name)
		if err != nil {
			return nil, false, fmt.Errorf("failed to look up profile: %w", err)
		}
		if previous != nil && previous.SourcePath != nil && *previous.SourcePath == sourcePath {
			previous.Manufacturer = desc.Manufacturer
			previous.ModeCount = len(desc.Modes)
			previous.SourceHash = hash
			previous.Document = string(data)
			if err := i.profileRepo.Update(ctx, previous); err != nil {
				return nil, false, fmt.Errorf("failed to update profile %q: %w", desc.Name, err)
			}
			log.Printf("🔄 Updated profile %s from %s", desc.Name, sourcePath)
			return previous, true, nil
		}
	}

	profile = &models.FixtureProfile{
		Name:         desc.Name,
		Manufacturer: desc.Manufacturer,
		ModeCount:    len(desc.Modes),
		SourceHash:   hash,
		Document:     string(data),
	}
	if sourcePath != "" {
		profile.SourcePath = &sourcePath
	}
	if err := i.profileRepo.Create(ctx, profile); err != nil {
		// Lost a race with a concurrent import of the same document
		if existing, findErr := i.profileRepo.FindByHash(ctx, hash); findErr == nil && existing != nil {
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to store profile %q: %w", desc.Name, err)
	}
	return profile, true, nil
}

// ImportFile imports one description file.
func (i *Importer) ImportFile(ctx context.Context, path string) (*models.FixtureProfile, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return i.ImportBytes(ctx, data, path)
}

// ImportDir imports every .yaml and .yml file in dir. Files that fail are
// logged and counted; a missing directory is not an error.
func (i *Importer) ImportDir(ctx context.Context, dir string) (*ImportStatus, error) {
	status := &ImportStatus{
		LastImportTime: time.Now(),
		Directory:      dir,
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("⚠️  Profile directory %s does not exist, skipping import", dir)
			return status, nil
		}
		return nil, fmt.Errorf("failed to read profile directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	status.TotalFiles = len(files)

	var (
		successCount int64
		skipCount    int64
		failCount    int64
		wg           sync.WaitGroup
	)
	sem := make(chan struct{}, importConcurrency)

	for _, path := range files {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			profile, created, err := i.ImportFile(ctx, path)
			if err != nil {
				log.Printf("⚠️  Failed to import %s: %v", filepath.Base(path), err)
				atomic.AddInt64(&failCount, 1)
				return
			}
			if !created {
				atomic.AddInt64(&skipCount, 1)
				return
			}
			log.Printf("✅ Imported profile %s (%s)", profile.Name, filepath.Base(path))
			atomic.AddInt64(&successCount, 1)
		}(path)
	}
	wg.Wait()

	status.SuccessfulImports = int(successCount)
	status.SkippedDuplicates = int(skipCount)
	status.FailedImports = int(failCount)

	log.Printf("✅ Profile import complete: %d imported, %d unchanged, %d failed, %d total",
		status.SuccessfulImports, status.SkippedDuplicates, status.FailedImports, status.TotalFiles)

	if err := i.saveImportStatus(ctx, status); err != nil {
		log.Printf("Warning: failed to save import status: %v", err)
	}
	return status, nil
}

func (i *Importer) saveImportStatus(ctx context.Context, status *ImportStatus) error {
	if i.settingRepo == nil {
		return nil
	}
	return i.settingRepo.SaveJSON(ctx, ImportStatusKey, status)
}

// LoadImportStatus returns the last saved import status, or nil.
func (i *Importer) LoadImportStatus(ctx context.Context) (*ImportStatus, error) {
	if i.settingRepo == nil {
		return nil, nil
	}
	var status ImportStatus
	found, err := i.settingRepo.LoadJSON(ctx, ImportStatusKey, &status)
	if err != nil || !found {
		return nil, err
	}
	return &status, nil
}
