package workers

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/birdphotos/database"
	"github.com/camden-git/birdphotos/database/dbtest"
	"github.com/camden-git/birdphotos/media"
	"github.com/camden-git/birdphotos/repository"
	"github.com/camden-git/birdphotos/services"
)

type importFixture struct {
	importer *FolderImporter
	photos   *repository.PhotoRepository
	store    *media.LocalStorage
	srcDir   string
}

func newImportFixture(t *testing.T) importFixture {
	t.Helper()
	db := dbtest.Open(t)
	store, err := media.NewLocalStorage(t.TempDir(), map[media.AssetType]string{media.AssetTypePhoto: "photos"})
	require.NoError(t, err)

	photos := repository.NewPhotoRepository(db, "/images")
	species := repository.NewSpeciesRepository(db)
	catalog := services.NewCatalogService(photos, species, repository.NewLinkRepository(db),
		services.NewSpeciesReconciler(species, nil, time.Second), store)

	importer := NewFolderImporter(photos, catalog, media.NewProcessor(store), ImportConfig{
		PhotoDir:   "photos",
		Options:    media.ImageProcessingOptions{MaxSize: 64, Quality: 80},
		QueueSize:  4,
		NumWorkers: 2,
	})
	return importFixture{importer: importer, photos: photos, store: store, srcDir: t.TempDir()}
}

func writeImage(t *testing.T, dir, name string, w, h int) {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 10, G: 100, B: 200, A: 255})
	require.NoError(t, imaging.Save(img, filepath.Join(dir, name)))
}

func TestFolderImporter_ImportsNewImages(t *testing.T) {
	f := newImportFixture(t)
	ctx := context.Background()
	writeImage(t, f.srcDir, "kingfisher.jpg", 300, 150)
	writeImage(t, f.srcDir, "bulbul.png", 40, 40)
	require.NoError(t, os.WriteFile(filepath.Join(f.srcDir, "notes.txt"), []byte("x"), 0644))

	report, err := f.importer.Run(ctx, f.srcDir, false)
	require.NoError(t, err)
	assert.Equal(t, ImportReport{Scanned: 2, Queued: 2, Imported: 2}, report)

	pending, err := f.photos.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	for _, p := range pending {
		assert.Equal(t, database.UnknownLabel, p.Location)
		assert.Equal(t, database.UnknownDateLabel, p.DateTaken)
	}

	full, err := f.store.GetFullPath("photos/kingfisher.jpg")
	require.NoError(t, err)
	saved, err := imaging.Open(full)
	require.NoError(t, err)
	assert.Equal(t, 64, saved.Bounds().Dx())
	assert.Equal(t, 32, saved.Bounds().Dy())

	// a second run finds nothing new
	report, err = f.importer.Run(ctx, f.srcDir, false)
	require.NoError(t, err)
	assert.Equal(t, ImportReport{Scanned: 2, Skipped: 2}, report)
}

func TestFolderImporter_PruneRemovesVanishedImages(t *testing.T) {
	f := newImportFixture(t)
	ctx := context.Background()
	writeImage(t, f.srcDir, "keep.jpg", 20, 20)
	writeImage(t, f.srcDir, "gone.jpg", 20, 20)

	_, err := f.importer.Run(ctx, f.srcDir, false)
	require.NoError(t, err)

	remoteID, err := f.photos.Create(ctx, repository.NewPhoto{ImageLocation: "https://cdn.example/remote.jpg"})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(f.srcDir, "gone.jpg")))
	report, err := f.importer.Run(ctx, f.srcDir, true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pruned)
	assert.Equal(t, 1, report.Skipped)

	exists, err := f.store.Exists("photos/gone.jpg")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = f.photos.ExistsByImageLocation(ctx, "photos/gone.jpg")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = f.photos.GetByID(ctx, remoteID)
	assert.NoError(t, err, "remote photos are never pruned")
}

func TestFolderImporter_MissingDirectory(t *testing.T) {
	f := newImportFixture(t)
	_, err := f.importer.Run(context.Background(), filepath.Join(f.srcDir, "nope"), false)
	assert.Error(t, err)
}

func TestPhotoKey(t *testing.T) {
	assert.Equal(t, "photos/a.jpg", PhotoKey("photos", "/tmp/in/a.jpg"))
	assert.Equal(t, "birds/2024/a.jpg", PhotoKey("birds/2024", "a.jpg"))
	assert.Equal(t, "photos/heron.jpg", PhotoKey("photos", "heron.jpg"))
	assert.Equal(t, "media/birds/heron.jpg", PhotoKey("media/birds/", "../heron.jpg"))
}
