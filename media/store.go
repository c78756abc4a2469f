package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Store persists artifacts under references of the form "<subdir>/<filename>".
type Store interface {
	// Save writes data under the asset type's directory and returns the reference.
	// It fails if the name is already taken.
	Save(ctx context.Context, assetType AssetType, filename string, data io.Reader) (string, error)
	// Open returns a reader for a stored artifact.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	// Delete removes an artifact. An absent artifact is not an error.
	Delete(ctx context.Context, ref string) error
	// List returns every reference stored for the asset type.
	List(ctx context.Context, assetType AssetType) ([]string, error)
}

// LocalStorage implements the Store interface using the local filesystem
type LocalStorage struct {
	basePath  string               // absolute path to the MEDIA_STORAGE_PATH
	subDirMap map[AssetType]string // maps AssetType to subdirectory name (e.g., "thumbnails")
	logger    *slog.Logger
}

// NewLocalStorage creates the base and per-type directories and returns the store
func NewLocalStorage(basePath string, subDirs map[AssetType]string, logger *slog.Logger) (*LocalStorage, error) {
	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid base storage path '%s': %w", basePath, err)
	}

	for assetType, subDir := range subDirs {
		fullPath := filepath.Join(absBasePath, subDir)
		if subDir == "" || !strings.HasPrefix(filepath.Clean(fullPath), absBasePath+string(filepath.Separator)) {
			return nil, fmt.Errorf("invalid subdirectory configuration for %s: '%s' resolves outside base path '%s'", assetType, subDir, absBasePath)
		}
		if err := os.MkdirAll(fullPath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory '%s': %w", fullPath, err)
		}
	}

	logger.Info("initialized local artifact storage", "path", absBasePath)
	return &LocalStorage{
		basePath:  absBasePath,
		subDirMap: subDirs,
		logger:    logger,
	}, nil
}

// BasePath returns the absolute storage root.
func (ls *LocalStorage) BasePath() string {
	return ls.basePath
}

func (ls *LocalStorage) subDir(assetType AssetType) (string, error) {
	subDir, ok := ls.subDirMap[assetType]
	if !ok {
		return "", fmt.Errorf("asset type '%s' is not configured", assetType)
	}
	return subDir, nil
}

func (ls *LocalStorage) Save(ctx context.Context, assetType AssetType, filename string, data io.Reader) (string, error) {
	subDir, err := ls.subDir(assetType)
	if err != nil {
		return "", err
	}
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return "", fmt.Errorf("invalid artifact filename '%s'", filename)
	}

	ref := path.Join(filepath.ToSlash(subDir), filename)
	fullSavePath, err := ls.FullPath(ref)
	if err != nil {
		return "", err
	}

	outFile, err := os.OpenFile(fullSavePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create destination file '%s': %w", fullSavePath, err)
	}

	if _, err := io.Copy(outFile, contextReader{ctx: ctx, r: data}); err != nil {
		outFile.Close()
		os.Remove(fullSavePath)
		return "", fmt.Errorf("failed to write data to '%s': %w", fullSavePath, err)
	}
	if err := outFile.Close(); err != nil {
		os.Remove(fullSavePath)
		return "", fmt.Errorf("failed to flush '%s': %w", fullSavePath, err)
	}

	ls.logger.Debug("saved artifact", "ref", ref)
	return ref, nil
}

func (ls *LocalStorage) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	fullPath, err := ls.FullPath(ref)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact '%s': %w", ref, err)
	}
	return file, nil
}

// Delete removes an asset file
func (ls *LocalStorage) Delete(_ context.Context, ref string) error {
	fullPath, err := ls.FullPath(ref)
	if err != nil {
		return err
	}

	err = os.Remove(fullPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) { // absent means already deleted
		return fmt.Errorf("failed to delete artifact '%s': %w", ref, err)
	}
	if err == nil {
		ls.logger.Debug("deleted artifact", "ref", ref)
	}
	return nil
}

func (ls *LocalStorage) List(_ context.Context, assetType AssetType) ([]string, error) {
	subDir, err := ls.subDir(assetType)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(ls.basePath, subDir))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s artifacts: %w", assetType, err)
	}

	refs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		refs = append(refs, path.Join(filepath.ToSlash(subDir), entry.Name()))
	}
	sort.Strings(refs)
	return refs, nil
}

// FullPath calculates the absolute path and performs security check
func (ls *LocalStorage) FullPath(ref string) (string, error) {
	cleanRef := filepath.Clean(filepath.FromSlash(ref))
	absFullPath := filepath.Join(ls.basePath, cleanRef)

	if !strings.HasPrefix(absFullPath, ls.basePath+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path: access denied for '%s'", ref)
	}
	return absFullPath, nil
}

// contextReader stops a copy once the request context is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
