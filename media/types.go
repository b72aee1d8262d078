// media/types.go
package media

type AssetType string

const (
	AssetTypePhoto   AssetType = "photo"
	AssetTypeUnknown AssetType = "unknown"
)

const (
	DefaultPhotoMaxSize = 2048
	DefaultPhotoQuality = 85
)

// ImageProcessingOptions controls how imported photos are re-encoded
type ImageProcessingOptions struct {
	MaxSize int // longest side in pixels, 0 keeps the original size
	Quality int // JPEG quality
}

// DefaultPhotoOptions returns the options used by the import pipeline
func DefaultPhotoOptions() ImageProcessingOptions {
	return ImageProcessingOptions{MaxSize: DefaultPhotoMaxSize, Quality: DefaultPhotoQuality}
}
