package assets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v2"
	"github.com/h2non/filetype"
	"github.com/pkg/errors"

	"github.com/listenup/listenup/common/gerror"
	"github.com/listenup/listenup/common/logger"
	"github.com/listenup/listenup/common/models"
	"github.com/listenup/listenup/common/util"
	"github.com/listenup/listenup/server/services"
)

// assetURIScheme prefixes user-scoped asset locators, e.g.
// user://uploads/stems/mix.wav.
const assetURIScheme = "user://"

// sniffLength is the number of leading bytes filetype needs to detect a
// file's type.
const sniffLength = 261

// AssetService manages the files in each user's upload area. Uploaded names
// pass through filename escaping before they touch the store, so the keys it
// builds are path traversal safe, and the stored path is returned to the
// caller for use as a step input.
type AssetService struct {
	assetStore services.AssetStore
	logger.Log
}

func NewAssetService(assetStore services.AssetStore, logFactory logger.LogFactory) *AssetService {
	return &AssetService{
		assetStore: assetStore,
		Log:        logFactory("AssetService"),
	}
}

// Upload stores the contents of reader as a new asset for the user,
// optionally nested under a folder, and returns its description.
// Returns gerror.ErrAssetUploadFailed if the asset could not be stored.
func (s *AssetService) Upload(ctx context.Context, userID models.UserID, folder string, filename string, reader io.Reader) (*models.Asset, error) {
	err := validateAssetUserID(userID)
	if err != nil {
		return nil, err
	}
	name, escapedName, err := sanitizeFileName(filename)
	if err != nil {
		return nil, err
	}
	displayFolder, escapedFolder, err := sanitizeFolder(folder)
	if err != nil {
		return nil, err
	}

	contentType, data, err := sniffContentType(reader)
	if err != nil {
		return nil, gerror.NewErrAssetUploadFailed(fmt.Sprintf("Failed to read asset %q", name), err)
	}
	key := makeAssetKey(userID, escapedFolder, escapedName)
	countingReader := util.NewCountingReader(data)
	err = s.assetStore.Put(ctx, key, countingReader)
	if err != nil {
		return nil, gerror.NewErrAssetUploadFailed(fmt.Sprintf("Failed to store asset %q", name), err)
	}

	asset := &models.Asset{
		Name:        name,
		URI:         makeAssetURI(escapedFolder, escapedName),
		Type:        models.AssetTypeFile,
		Folder:      displayFolder,
		UserID:      userID,
		StoragePath: key,
		ContentType: contentType,
		Size:        int64(countingReader.Count()),
		UploadedAt:  models.NewTimePtr(time.Now()),
	}
	s.Infof("Uploaded asset %q (%d bytes, %s) for user %q", asset.URI, asset.Size, asset.ContentType, userID)
	return asset, nil
}

// List returns one level of the user's upload area: file assets directly
// inside the given folder plus a folder entry for each subfolder, files
// first, each group sorted by name. A non-empty glob pattern filters entries
// by name.
func (s *AssetService) List(ctx context.Context, userID models.UserID, folder string, pattern string) ([]*models.Asset, error) {
	err := validateAssetUserID(userID)
	if err != nil {
		return nil, err
	}
	displayFolder, escapedFolder, err := sanitizeFolder(folder)
	if err != nil {
		return nil, err
	}

	prefix := makeAssetKey(userID, escapedFolder, "") + "/"
	descriptors, err := s.assetStore.List(ctx, prefix)
	if err != nil {
		return nil, errors.Wrapf(err, "error listing assets for user %q", userID)
	}

	var assets []*models.Asset
	folderCounts := make(map[string]int)
	for _, descriptor := range descriptors {
		segments := strings.Split(strings.TrimPrefix(descriptor.Key, prefix), "/")
		switch len(segments) {
		case 1:
			name, err := util.UnescapeFileName(segments[0])
			if err != nil {
				s.Warnf("Skipping asset %q with undecodable name: %v", descriptor.Key, err)
				continue
			}
			assets = append(assets, &models.Asset{
				Name:        name,
				URI:         makeAssetURI(escapedFolder, segments[0]),
				Type:        models.AssetTypeFile,
				Folder:      displayFolder,
				UserID:      userID,
				StoragePath: descriptor.Key,
				Size:        descriptor.Size,
			})
		case 2:
			folderCounts[segments[0]]++
		default:
			// Deeper files still reveal their top-level folder, but only
			// direct children contribute to the count
			if _, ok := folderCounts[segments[0]]; !ok {
				folderCounts[segments[0]] = 0
			}
		}
	}
	for escaped, count := range folderCounts {
		name, err := util.UnescapeFileName(escaped)
		if err != nil {
			s.Warnf("Skipping folder %q with undecodable name: %v", escaped, err)
			continue
		}
		assets = append(assets, &models.Asset{
			Name:      name,
			Type:      models.AssetTypeFolder,
			Folder:    displayFolder,
			UserID:    userID,
			FileCount: count,
		})
	}

	if pattern != "" {
		filtered := assets[:0]
		for _, asset := range assets {
			matched, err := doublestar.Match(pattern, asset.Name)
			if err != nil {
				return nil, gerror.NewErrValidationFailed(fmt.Sprintf("Invalid pattern %q", pattern)).Wrap(err)
			}
			if matched {
				filtered = append(filtered, asset)
			}
		}
		assets = filtered
	}
	sort.Slice(assets, func(i, j int) bool {
		if assets[i].Type != assets[j].Type {
			return assets[i].Type == models.AssetTypeFile
		}
		return assets[i].Name < assets[j].Name
	})
	return assets, nil
}

// sniffContentType detects the uploaded file's type from its leading bytes
// and returns a reader that replays them ahead of the rest of the data.
func sniffContentType(reader io.Reader) (string, io.Reader, error) {
	header := make([]byte, sniffLength)
	headerRead := 0
	for headerRead < len(header) {
		n, err := reader.Read(header[headerRead:])
		headerRead += n
		if err != nil {
			if err == io.EOF {
				break
			}
			return "", nil, errors.Wrap(err, "error reading asset file header")
		}
	}
	data := io.MultiReader(bytes.NewReader(header[:headerRead]), reader)
	if headerRead == 0 {
		return "application/octet-stream", data, nil
	}
	kind, err := filetype.Match(header[:headerRead])
	if err != nil {
		return "", nil, errors.Wrap(err, "error determining asset file type")
	}
	if kind == filetype.Unknown || kind.MIME.Value == "" {
		return "application/octet-stream", data, nil
	}
	return kind.MIME.Value, data, nil
}

func validateAssetUserID(userID models.UserID) error {
	if !userID.Valid() {
		return gerror.NewErrValidationFailed("User id must be set")
	}
	err := userID.ValidatePathSafe()
	if err != nil {
		return gerror.NewErrValidationFailed(fmt.Sprintf("Invalid user id %q", userID)).Wrap(err)
	}
	return nil
}

// sanitizeFileName reduces an uploaded filename to its base name and escapes
// it for storage. Returns the display name and the escaped on-disk name.
func sanitizeFileName(filename string) (string, string, error) {
	base := filepath.Base(strings.TrimSpace(filename))
	if base == "" || base == "." || base == ".." || base == "/" {
		return "", "", gerror.NewErrValidationFailed("No file name provided")
	}
	return base, filepath.ToSlash(util.EscapeFileName(base)), nil
}

// sanitizeFolder cleans an optional upload subfolder path and escapes each
// element for storage. Returns the display path and the escaped path, both
// empty when no folder was given.
func sanitizeFolder(folder string) (string, string, error) {
	trimmed := strings.Trim(strings.TrimSpace(folder), "/")
	if trimmed == "" {
		return "", "", nil
	}
	clean := path.Clean(trimmed)
	if clean == "." {
		return "", "", nil
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", "", gerror.NewErrValidationFailed(fmt.Sprintf("Invalid folder %q", folder))
	}
	return clean, filepath.ToSlash(util.EscapeFileName(clean)), nil
}

// makeAssetKey builds the storage key for an asset from pre-escaped parts.
func makeAssetKey(userID models.UserID, escapedFolder string, escapedName string) string {
	return path.Join("users", userID.String(), "uploads", escapedFolder, escapedName)
}

// makeAssetURI builds the user-scoped locator for an asset from pre-escaped
// parts.
func makeAssetURI(escapedFolder string, escapedName string) string {
	return assetURIScheme + path.Join("uploads", escapedFolder, escapedName)
}
