package workers

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/disintegration/imaging"

	"github.com/camden-git/birdphotos/database"
	"github.com/camden-git/birdphotos/geocode"
	"github.com/camden-git/birdphotos/media"
	"github.com/camden-git/birdphotos/repository"
	"github.com/camden-git/birdphotos/utils"
)

// ImportJob describes one image file waiting to be imported
type ImportJob struct {
	SourcePath string // absolute path of the source image
	Filename   string // base name, reused for the stored copy
}

// PhotoCreator is the part of the photo repository the workers need
type PhotoCreator interface {
	Create(ctx context.Context, in repository.NewPhoto) (uint, error)
	ExistsByImageLocation(ctx context.Context, location string) (bool, error)
}

// LocationResolver names the place at a GPS position. geocode.Client is the
// production implementation.
type LocationResolver interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}

// PhotoSaver writes an optimized copy of an image into the media store
type PhotoSaver interface {
	SavePhoto(img image.Image, filename string, opts media.ImageProcessingOptions) (string, error)
}

// ImportProcessor runs a fixed pool of workers that turn image files into
// pending catalog photos
type ImportProcessor struct {
	JobQueue  chan ImportJob
	Photos    PhotoCreator
	Saver     PhotoSaver
	Locations LocationResolver // nil leaves every location unknown
	Options   media.ImageProcessingOptions
	PhotoDir  string // media store sub-directory photos are saved in
	Wg        sync.WaitGroup
	StopChan  chan struct{}
	Pending   map[string]bool
	Mutex     sync.Mutex

	ctx      context.Context
	closed   sync.Once
	imported atomic.Int64
	failed   atomic.Int64
}

// ImportConfig sizes the worker pool and controls the stored copies
type ImportConfig struct {
	PhotoDir   string
	Options    media.ImageProcessingOptions
	QueueSize  int
	NumWorkers int
	Locations  LocationResolver
}

func NewImportProcessor(ctx context.Context, photos PhotoCreator, saver PhotoSaver, cfg ImportConfig) *ImportProcessor {
	numWorkers, queueSize := cfg.NumWorkers, cfg.QueueSize
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	proc := &ImportProcessor{
		JobQueue:  make(chan ImportJob, queueSize),
		Photos:    photos,
		Saver:     saver,
		Locations: cfg.Locations,
		Options:   cfg.Options,
		PhotoDir:  cfg.PhotoDir,
		StopChan:  make(chan struct{}),
		Pending:   make(map[string]bool),
		ctx:       ctx,
	}
	proc.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go proc.worker(i)
	}
	log.Printf("Started %d import worker(s) with queue size %d", numWorkers, queueSize)
	return proc
}

// worker processes jobs from the queue until it is closed or stopped
func (ip *ImportProcessor) worker(id int) {
	defer ip.Wg.Done()

	for {
		select {
		case job, ok := <-ip.JobQueue:
			if !ok {
				return
			}

			if err := ip.processImportJob(job); err != nil {
				ip.failed.Add(1)
				log.Printf("Worker %d: ERROR importing %s: %v", id, job.Filename, err)
			} else {
				ip.imported.Add(1)
			}

			ip.Mutex.Lock()
			delete(ip.Pending, job.Filename)
			ip.Mutex.Unlock()

		case <-ip.StopChan:
			log.Printf("Import worker %d stopping: Stop signal received", id)
			return
		}
	}
}

// processImportJob reads EXIF data, stores a resized copy and creates the photo row
func (ip *ImportProcessor) processImportJob(job ImportJob) error {
	key := PhotoKey(ip.PhotoDir, job.Filename)
	exists, err := ip.Photos.ExistsByImageLocation(ip.ctx, key)
	if err != nil {
		return err
	}
	if exists {
		log.Printf("Worker: %s already catalogued, skipping", key)
		return nil
	}

	meta, err := utils.GetPhotoMetadata(job.SourcePath)
	if err != nil {
		return fmt.Errorf("metadata extraction failed: %w", err)
	}

	img, err := imaging.Open(job.SourcePath, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}

	savedKey, err := ip.Saver.SavePhoto(img, job.Filename, ip.Options)
	if err != nil {
		return err
	}

	id, err := ip.Photos.Create(ip.ctx, repository.NewPhoto{
		ImageLocation: savedKey,
		DateTaken:     meta.DateTaken,
		Location:      ip.locate(meta),
		Latitude:      meta.Latitude,
		Longitude:     meta.Longitude,
	})
	if err != nil {
		return fmt.Errorf("failed to create photo row: %w", err)
	}
	log.Printf("Worker: Imported %s as photo %d", savedKey, id)
	return nil
}

// locate names the place a photo was taken. Photos without GPS data, and
// positions the resolver cannot name, get the unknown label.
func (ip *ImportProcessor) locate(meta *utils.PhotoMetadata) string {
	if ip.Locations == nil || meta.Latitude == nil || meta.Longitude == nil {
		return database.UnknownLabel
	}
	place, err := ip.Locations.ReverseGeocode(ip.ctx, *meta.Latitude, *meta.Longitude)
	if err != nil {
		if !errors.Is(err, geocode.ErrNoPlace) {
			log.Printf("Worker: reverse geocoding %.5f,%.5f failed: %v", *meta.Latitude, *meta.Longitude, err)
		}
		return database.UnknownLabel
	}
	return place
}

// QueueJob queues a file unless it is already pending. It blocks while the
// queue is full and gives up when the context ends or the pool is stopped.
func (ip *ImportProcessor) QueueJob(ctx context.Context, job ImportJob) bool {
	ip.Mutex.Lock()
	if ip.Pending[job.Filename] {
		ip.Mutex.Unlock()
		return false
	}
	ip.Pending[job.Filename] = true
	ip.Mutex.Unlock()

	select {
	case ip.JobQueue <- job:
		return true
	case <-ctx.Done():
	case <-ip.StopChan:
	}

	ip.Mutex.Lock()
	delete(ip.Pending, job.Filename)
	ip.Mutex.Unlock()
	return false
}

// Finish closes the queue and waits for the queued jobs to complete
func (ip *ImportProcessor) Finish() (imported, failed int) {
	ip.closed.Do(func() { close(ip.JobQueue) })
	ip.Wg.Wait()
	return int(ip.imported.Load()), int(ip.failed.Load())
}

// Stop abandons queued jobs and waits for in-flight ones
func (ip *ImportProcessor) Stop() {
	log.Println("Stopping import workers...")
	close(ip.StopChan)
	ip.Wg.Wait()
	log.Println("All import workers stopped")
}

// PhotoKey is the media store key an imported file is saved under
func PhotoKey(photoDir, filename string) string {
	return path.Join(filepath.ToSlash(photoDir), filepath.Base(filename))
}
