package media

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidPath is returned for asset paths that escape the storage root
var ErrInvalidPath = errors.New("invalid asset path")

// Store defines the interface for saving, retrieving, and deleting media assets
type Store interface {
	// Save writes data as filename inside the asset type's directory and
	// returns the relative key, e.g. "photos/heron.jpg"
	Save(assetType AssetType, filename string, data io.Reader) (string, error)
	// Get retrieves a reader for an asset
	Get(relativePath string) (io.ReadCloser, os.FileInfo, error)
	// Delete removes an asset. Missing assets are not an error.
	Delete(relativePath string) error
	// Exists reports whether an asset is present
	Exists(relativePath string) (bool, error)
	// GetFullPath returns the absolute filesystem path for a relative asset path
	GetFullPath(relativePath string) (string, error)
	// EnsureDir makes sure a specific asset type directory exists
	EnsureDir(assetType AssetType) (string, error)
}

// LocalStorage implements the Store interface using the local filesystem
type LocalStorage struct {
	basePath        string               // absolute path to the MEDIA_STORAGE_PATH
	resolvedPathMap map[AssetType]string // maps AssetType to full absolute path
}

// NewLocalStorage creates a new local filesystem store. subDirs maps asset
// types to directory names below basePath (e.g. AssetTypePhoto -> "photos").
func NewLocalStorage(basePath string, subDirs map[AssetType]string) (*LocalStorage, error) {
	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid base storage path '%s': %w", basePath, err)
	}

	if err := os.MkdirAll(absBasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory '%s': %w", absBasePath, err)
	}

	resolvedPaths := make(map[AssetType]string)
	for assetType, subDir := range subDirs {
		fullPath := filepath.Join(absBasePath, subDir)
		if !within(absBasePath, fullPath) || fullPath == absBasePath {
			return nil, fmt.Errorf("invalid subdirectory configuration: '%s' resolves outside base path '%s'", subDir, absBasePath)
		}
		resolvedPaths[assetType] = fullPath
	}

	log.Printf("media.store: Initialized LocalStorage at %s", absBasePath)
	return &LocalStorage{
		basePath:        absBasePath,
		resolvedPathMap: resolvedPaths,
	}, nil
}

// BasePath returns the absolute storage root
func (ls *LocalStorage) BasePath() string {
	return ls.basePath
}

// within reports whether path is base itself or inside it
func within(base, path string) bool {
	rel, err := filepath.Rel(base, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// EnsureDir creates the directory for the asset type if it doesn't exist
func (ls *LocalStorage) EnsureDir(assetType AssetType) (string, error) {
	dirPath, ok := ls.resolvedPathMap[assetType]
	if !ok {
		return "", fmt.Errorf("asset type '%s' is not configured", assetType)
	}
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to ensure directory '%s': %w", dirPath, err)
	}
	return dirPath, nil
}

// Save writes data to a temporary file next to the target and renames it into
// place, so readers never see a partially written asset
func (ls *LocalStorage) Save(assetType AssetType, filename string, data io.Reader) (string, error) {
	baseAssetDir, err := ls.EnsureDir(assetType)
	if err != nil {
		return "", err
	}

	name := filepath.Base(filepath.Clean(filename))
	if filename == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "", fmt.Errorf("%w: filename '%s'", ErrInvalidPath, filename)
	}
	fullSavePath := filepath.Join(baseAssetDir, name)
	tmpPath := filepath.Join(baseAssetDir, "."+uuid.NewString()+".tmp")

	outFile, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("failed to create destination file '%s': %w", tmpPath, err)
	}

	if _, err := io.Copy(outFile, data); err != nil {
		outFile.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write data to '%s': %w", fullSavePath, err)
	}
	if err := outFile.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to flush '%s': %w", fullSavePath, err)
	}
	if err := os.Rename(tmpPath, fullSavePath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to move asset into place at '%s': %w", fullSavePath, err)
	}

	relativePath, err := filepath.Rel(ls.basePath, fullSavePath)
	if err != nil {
		return "", fmt.Errorf("internal error calculating relative path: %w", err)
	}

	log.Printf("media.store: Saved asset to %s", fullSavePath)
	return filepath.ToSlash(relativePath), nil
}

func (ls *LocalStorage) Get(relativePath string) (io.ReadCloser, os.FileInfo, error) {
	fullPath, err := ls.GetFullPath(relativePath)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("asset not found at '%s': %w", relativePath, err)
		}
		return nil, nil, fmt.Errorf("failed to open asset '%s': %w", relativePath, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to stat asset '%s': %w", relativePath, err)
	}
	if info.IsDir() {
		file.Close()
		return nil, nil, fmt.Errorf("asset not found at '%s': %w", relativePath, os.ErrNotExist)
	}

	return file, info, nil
}

// Delete removes an asset file
func (ls *LocalStorage) Delete(relativePath string) error {
	fullPath, err := ls.GetFullPath(relativePath)
	if err != nil {
		return err
	}

	err = os.Remove(fullPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete asset '%s': %w", relativePath, err)
	}
	if err == nil {
		log.Printf("media.store: Deleted asset %s", fullPath)
	}
	return nil
}

// Exists reports whether a regular file is stored at relativePath
func (ls *LocalStorage) Exists(relativePath string) (bool, error) {
	fullPath, err := ls.GetFullPath(relativePath)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat asset '%s': %w", relativePath, err)
	}
	return !info.IsDir(), nil
}

// GetFullPath calculates the absolute path and performs security check
func (ls *LocalStorage) GetFullPath(relativePath string) (string, error) {
	if strings.TrimSpace(relativePath) == "" || filepath.IsAbs(relativePath) {
		return "", fmt.Errorf("%w: '%s'", ErrInvalidPath, relativePath)
	}

	absFullPath := filepath.Join(ls.basePath, filepath.FromSlash(relativePath))
	if !within(ls.basePath, absFullPath) || absFullPath == ls.basePath {
		return "", fmt.Errorf("%w: access denied for '%s'", ErrInvalidPath, relativePath)
	}

	return absFullPath, nil
}
