package workers

import (
	"context"
	"fmt"
	"log"
	"path"
	"path/filepath"

	"github.com/camden-git/birdphotos/database"
	"github.com/camden-git/birdphotos/repository"
	"github.com/camden-git/birdphotos/utils"
)

// ImportReport summarises a folder import
type ImportReport struct {
	Scanned  int `json:"scanned"`
	Skipped  int `json:"skipped"`
	Queued   int `json:"queued"`
	Imported int `json:"imported"`
	Failed   int `json:"failed"`
	Pruned   int `json:"pruned"`
}

// FolderCatalog is the photo storage a folder import reads and writes
type FolderCatalog interface {
	PhotoCreator
	ListImageRefs(ctx context.Context) ([]repository.ImageRef, error)
}

// PhotoDeleter removes a photo together with its links and stored image
type PhotoDeleter interface {
	DeletePhoto(ctx context.Context, id uint) error
}

// FolderImporter syncs a directory of images into the catalog
type FolderImporter struct {
	Photos  FolderCatalog
	Deleter PhotoDeleter
	Saver   PhotoSaver
	Config  ImportConfig
}

func NewFolderImporter(photos FolderCatalog, deleter PhotoDeleter, saver PhotoSaver, cfg ImportConfig) *FolderImporter {
	return &FolderImporter{Photos: photos, Deleter: deleter, Saver: saver, Config: cfg}
}

// Run imports every image in dir that is not catalogued yet. With prune set,
// photos stored from a previous import whose source file is gone are deleted.
func (fi *FolderImporter) Run(ctx context.Context, dir string, prune bool) (ImportReport, error) {
	var report ImportReport

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return report, fmt.Errorf("invalid import directory '%s': %w", dir, err)
	}
	names, err := utils.ListRasterImages(absDir)
	if err != nil {
		return report, err
	}
	report.Scanned = len(names)
	log.Printf("import: found %d image(s) in %s", len(names), absDir)

	present := make(map[string]bool, len(names))
	proc := NewImportProcessor(ctx, fi.Photos, fi.Saver, fi.Config)
	for _, name := range names {
		key := PhotoKey(fi.Config.PhotoDir, name)
		present[key] = true

		exists, err := fi.Photos.ExistsByImageLocation(ctx, key)
		if err != nil {
			proc.Stop()
			return report, err
		}
		if exists {
			report.Skipped++
			continue
		}
		if proc.QueueJob(ctx, ImportJob{SourcePath: filepath.Join(absDir, name), Filename: name}) {
			report.Queued++
		}
	}
	report.Imported, report.Failed = proc.Finish()

	if err := ctx.Err(); err != nil {
		return report, err
	}
	if prune {
		pruned, err := fi.prune(ctx, present)
		report.Pruned = pruned
		if err != nil {
			return report, err
		}
	}

	log.Printf("import: scanned %d, skipped %d, imported %d, failed %d, pruned %d",
		report.Scanned, report.Skipped, report.Imported, report.Failed, report.Pruned)
	return report, nil
}

// prune deletes photos saved by the importer whose source file disappeared.
// Remote URLs and keys outside the photo directory are never touched.
func (fi *FolderImporter) prune(ctx context.Context, present map[string]bool) (int, error) {
	refs, err := fi.Photos.ListImageRefs(ctx)
	if err != nil {
		return 0, err
	}

	photoDir := path.Clean(filepath.ToSlash(fi.Config.PhotoDir))
	pruned := 0
	for _, ref := range refs {
		loc := ref.ImageLocation
		if !database.IsLocalImageKey(loc) || path.Dir(loc) != photoDir || present[loc] {
			continue
		}
		if err := fi.Deleter.DeletePhoto(ctx, ref.ID); err != nil {
			return pruned, fmt.Errorf("failed to prune photo %d (%s): %w", ref.ID, loc, err)
		}
		log.Printf("import: pruned photo %d, %s is no longer in the folder", ref.ID, loc)
		pruned++
	}
	return pruned, nil
}
