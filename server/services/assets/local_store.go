package assets

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/listenup/listenup/common/gerror"
	"github.com/listenup/listenup/common/models"
	"github.com/listenup/listenup/common/storage"
)

// LocalAssetStore keeps asset files directly beneath the storage root, so a
// stored asset's key doubles as the storage-relative path steps read it
// from. Keys are stored verbatim; the asset service sanitizes names before
// keys are built.
type LocalAssetStore struct {
	root string
}

func NewLocalAssetStore(root storage.StorageRoot) *LocalAssetStore {
	return &LocalAssetStore{
		root: filepath.Clean(root.String()),
	}
}

// Put writes all data in the source reader to the asset identified by key.
// The caller is responsible for closing the reader.
func (s *LocalAssetStore) Put(ctx context.Context, key string, source io.Reader) error {
	assetPath, err := s.makeAssetPath(key)
	if err != nil {
		return err
	}
	err = os.MkdirAll(filepath.Dir(assetPath), 0700)
	if err != nil {
		return errors.Wrap(err, "error making asset directory")
	}
	assetFile, err := os.Create(assetPath)
	if err != nil {
		return errors.Wrapf(err, "error opening asset %s for writing", assetPath)
	}
	defer assetFile.Close()
	_, err = io.Copy(assetFile, source)
	if err != nil {
		return errors.Wrapf(err, "error writing data to asset %s", assetPath)
	}
	err = assetFile.Sync()
	if err != nil {
		return errors.Wrapf(err, "error syncing asset %s", assetPath)
	}
	return nil
}

// Get returns a reader positioned at the beginning of the asset identified
// by key. The caller is responsible for closing the reader.
func (s *LocalAssetStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	assetPath, err := s.makeAssetPath(key)
	if err != nil {
		return nil, err
	}
	assetFile, err := os.Open(assetPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, gerror.NewErrNotFound("Not Found").Wrap(err).IDetail("key", key)
		}
		return nil, errors.Wrapf(err, "error opening asset %s for reading", assetPath)
	}
	return assetFile, nil
}

// List returns a descriptor for every asset file whose key begins with
// prefix. Keys are returned with forward slashes regardless of the
// filesystem's separator.
func (s *LocalAssetStore) List(ctx context.Context, prefix string) ([]*models.AssetDescriptor, error) {
	if strings.HasPrefix(prefix, "/") {
		return nil, fmt.Errorf("error asset keys cannot begin with /")
	}
	rootPath := filepath.Join(s.root, filepath.FromSlash(strings.TrimSuffix(prefix, "/")))
	_, err := os.Stat(rootPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("error stating asset prefix path: %w", err)
	}
	var results []*models.AssetDescriptor
	err = filepath.Walk(rootPath,
		func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(s.root, path)
			if err != nil {
				return fmt.Errorf("error getting relative path: %w", err)
			}
			key := filepath.ToSlash(rel)
			if !strings.HasPrefix(key, prefix) {
				return nil
			}
			results = append(results, &models.AssetDescriptor{Key: key, Size: info.Size()})
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("error during walk: %w", err)
	}
	return results, nil
}

// makeAssetPath makes a path to an asset on the local filesystem, rejecting
// keys that would land outside the storage root.
func (s *LocalAssetStore) makeAssetPath(key string) (string, error) {
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("error asset keys cannot begin with /")
	}
	assetPath := filepath.Join(s.root, filepath.FromSlash(key))
	if assetPath != s.root && !strings.HasPrefix(assetPath, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("error asset key %q escapes the storage root", key)
	}
	return assetPath, nil
}
