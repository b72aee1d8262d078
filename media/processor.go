package media

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// Processor re-encodes images and saves the results through a Store
type Processor struct {
	store Store
}

func NewProcessor(store Store) *Processor {
	return &Processor{store: store}
}

// SavePhoto shrinks img so its longest side fits opts.MaxSize and saves it
// under filename. The encoding follows the filename's extension; JPEGs use
// opts.Quality. Returns the relative key of the saved photo.
func (p *Processor) SavePhoto(img image.Image, filename string, opts ImageProcessingOptions) (string, error) {
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return "", fmt.Errorf("invalid image dimensions: %dx%d", bounds.Dx(), bounds.Dy())
	}

	format, err := imaging.FormatFromFilename(filename)
	if err != nil {
		return "", fmt.Errorf("unsupported output format for %s: %w", filename, err)
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultPhotoQuality
	}

	out := img
	if opts.MaxSize > 0 && (bounds.Dx() > opts.MaxSize || bounds.Dy() > opts.MaxSize) {
		// Fit keeps the aspect ratio and never upscales
		out = imaging.Fit(img, opts.MaxSize, opts.MaxSize, imaging.Lanczos)
	}

	reader, writer := io.Pipe()
	go func() {
		err := imaging.Encode(writer, out, format, imaging.JPEGQuality(opts.Quality))
		if err != nil {
			log.Printf("processor: Failed to encode %s: %v", filename, err)
			writer.CloseWithError(fmt.Errorf("photo encoding failed: %w", err))
			return
		}
		writer.Close()
	}()

	savedRelPath, err := p.store.Save(AssetTypePhoto, filepath.Base(filename), reader)
	if err != nil {
		reader.CloseWithError(err)
		return "", fmt.Errorf("failed to save photo via store: %w", err)
	}

	log.Printf("processor: Saved %dx%d photo at %s", out.Bounds().Dx(), out.Bounds().Dy(), savedRelPath)
	return savedRelPath, nil
}
