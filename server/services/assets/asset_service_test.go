package assets

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/listenup/listenup/common/gerror"
	"github.com/listenup/listenup/common/logger"
	"github.com/listenup/listenup/common/models"
	"github.com/listenup/listenup/common/storage"
)

// wavBytes is a minimal RIFF/WAVE header, enough for content type detection.
var wavBytes = []byte("RIFF\x24\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00")

func testAssetService(t *testing.T) (*AssetService, string) {
	logRegistry, err := logger.NewLogRegistry("")
	require.NoError(t, err)
	logFactory := logger.MakeLogrusLogFactoryStdOut(logRegistry)
	root := t.TempDir()
	service := NewAssetService(NewLocalAssetStore(storage.StorageRoot(root)), logFactory)
	return service, root
}

func TestLocalAssetStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewLocalAssetStore(storage.StorageRoot(t.TempDir()))

	require.NoError(t, store.Put(ctx, "users/u1/uploads/a.txt", strings.NewReader("hello")))

	reader, err := store.Get(ctx, "users/u1/uploads/a.txt")
	require.NoError(t, err)
	defer reader.Close()
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	descriptors, err := store.List(ctx, "users/u1/uploads/")
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	require.Equal(t, "users/u1/uploads/a.txt", descriptors[0].Key)
	require.Equal(t, int64(5), descriptors[0].Size)

	_, err = store.Get(ctx, "users/u1/uploads/missing.txt")
	require.True(t, gerror.IsNotFound(err))
}

func TestLocalAssetStoreRejectsUnsafeKeys(t *testing.T) {
	ctx := context.Background()
	store := NewLocalAssetStore(storage.StorageRoot(t.TempDir()))

	require.Error(t, store.Put(ctx, "/absolute/key", strings.NewReader("x")))
	require.Error(t, store.Put(ctx, "users/../../outside", strings.NewReader("x")))
	_, err := store.List(ctx, "/absolute/")
	require.Error(t, err)
}

func TestLocalAssetStoreListMissingPrefixIsEmpty(t *testing.T) {
	store := NewLocalAssetStore(storage.StorageRoot(t.TempDir()))
	descriptors, err := store.List(context.Background(), "users/nobody/uploads/")
	require.NoError(t, err)
	require.Empty(t, descriptors)
}

func TestUploadStoresFileAndDescribesIt(t *testing.T) {
	service, root := testAssetService(t)

	asset, err := service.Upload(context.Background(), "u1", "", "My Song.wav", bytes.NewReader(wavBytes))
	require.NoError(t, err)

	require.Equal(t, "My Song.wav", asset.Name)
	require.Equal(t, "user://uploads/My+Song.wav", asset.URI)
	require.Equal(t, models.AssetTypeFile, asset.Type)
	require.Empty(t, asset.Folder)
	require.Equal(t, models.UserID("u1"), asset.UserID)
	require.Equal(t, "users/u1/uploads/My+Song.wav", asset.StoragePath)
	require.Equal(t, "audio/x-wav", asset.ContentType)
	require.Equal(t, int64(len(wavBytes)), asset.Size)
	require.NotNil(t, asset.UploadedAt)

	// The storage path must resolve to the file on disk so a step can read it
	// as an input without translation
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(asset.StoragePath)))
	require.NoError(t, err)
	require.Equal(t, wavBytes, data)
}

func TestUploadIntoFolder(t *testing.T) {
	service, _ := testAssetService(t)

	asset, err := service.Upload(context.Background(), "u1", "stems/drums", "kick.wav", bytes.NewReader(wavBytes))
	require.NoError(t, err)
	require.Equal(t, "stems/drums", asset.Folder)
	require.Equal(t, "user://uploads/stems/drums/kick.wav", asset.URI)
	require.Equal(t, "users/u1/uploads/stems/drums/kick.wav", asset.StoragePath)
}

func TestUploadSniffsUnknownTypesAsOctetStream(t *testing.T) {
	service, _ := testAssetService(t)

	asset, err := service.Upload(context.Background(), "u1", "", "notes.txt", strings.NewReader("some plain text"))
	require.NoError(t, err)
	require.Equal(t, "application/octet-stream", asset.ContentType)
	require.Equal(t, int64(len("some plain text")), asset.Size)

	empty, err := service.Upload(context.Background(), "u1", "", "empty.bin", strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, "application/octet-stream", empty.ContentType)
	require.Zero(t, empty.Size)
}

func TestUploadSanitizesInput(t *testing.T) {
	service, _ := testAssetService(t)
	ctx := context.Background()

	// Directory components are stripped from the filename rather than honored
	asset, err := service.Upload(ctx, "u1", "", "../../etc/passwd", strings.NewReader("x"))
	require.NoError(t, err)
	require.Equal(t, "passwd", asset.Name)
	require.Equal(t, "users/u1/uploads/passwd", asset.StoragePath)

	_, err = service.Upload(ctx, "u1", "", "", strings.NewReader("x"))
	require.True(t, gerror.IsValidationFailed(err))
	_, err = service.Upload(ctx, "u1", "", "..", strings.NewReader("x"))
	require.True(t, gerror.IsValidationFailed(err))
	_, err = service.Upload(ctx, "u1", "../elsewhere", "a.txt", strings.NewReader("x"))
	require.True(t, gerror.IsValidationFailed(err))
	_, err = service.Upload(ctx, "", "", "a.txt", strings.NewReader("x"))
	require.True(t, gerror.IsValidationFailed(err))
	_, err = service.Upload(ctx, "u/1", "", "a.txt", strings.NewReader("x"))
	require.True(t, gerror.IsValidationFailed(err))
}

func TestListClassifiesFilesAndFolders(t *testing.T) {
	service, _ := testAssetService(t)
	ctx := context.Background()

	for _, upload := range []struct {
		folder string
		name   string
	}{
		{"", "mix.wav"},
		{"stems", "kick.wav"},
		{"stems", "snare.wav"},
		{"stems/sub", "deep.wav"},
	} {
		_, err := service.Upload(ctx, "u1", upload.folder, upload.name, bytes.NewReader(wavBytes))
		require.NoError(t, err)
	}

	assets, err := service.List(ctx, "u1", "", "")
	require.NoError(t, err)
	require.Len(t, assets, 2)
	require.Equal(t, "mix.wav", assets[0].Name)
	require.Equal(t, models.AssetTypeFile, assets[0].Type)
	require.Equal(t, "stems", assets[1].Name)
	require.Equal(t, models.AssetTypeFolder, assets[1].Type)
	// Only direct children count; stems/sub/deep.wav does not
	require.Equal(t, 2, assets[1].FileCount)

	stems, err := service.List(ctx, "u1", "stems", "")
	require.NoError(t, err)
	require.Len(t, stems, 3)
	require.Equal(t, "kick.wav", stems[0].Name)
	require.Equal(t, "snare.wav", stems[1].Name)
	require.Equal(t, "sub", stems[2].Name)
	require.Equal(t, models.AssetTypeFolder, stems[2].Type)
	require.Equal(t, 1, stems[2].FileCount)
	require.Equal(t, "stems", stems[0].Folder)
	require.Equal(t, "users/u1/uploads/stems/kick.wav", stems[0].StoragePath)
}

func TestListEmptyUploadArea(t *testing.T) {
	service, _ := testAssetService(t)
	assets, err := service.List(context.Background(), "u1", "", "")
	require.NoError(t, err)
	require.Empty(t, assets)
}

func TestListPatternFilters(t *testing.T) {
	service, _ := testAssetService(t)
	ctx := context.Background()

	_, err := service.Upload(ctx, "u1", "", "mix.wav", bytes.NewReader(wavBytes))
	require.NoError(t, err)
	_, err = service.Upload(ctx, "u1", "", "notes.txt", strings.NewReader("text"))
	require.NoError(t, err)

	assets, err := service.List(ctx, "u1", "", "*.wav")
	require.NoError(t, err)
	require.Len(t, assets, 1)
	require.Equal(t, "mix.wav", assets[0].Name)

	_, err = service.List(ctx, "u1", "", "[")
	require.True(t, gerror.IsValidationFailed(err))
}

func TestListRoundTripsEscapedNames(t *testing.T) {
	service, _ := testAssetService(t)
	ctx := context.Background()

	uploaded, err := service.Upload(ctx, "u1", "", "My Song.wav", bytes.NewReader(wavBytes))
	require.NoError(t, err)

	assets, err := service.List(ctx, "u1", "", "")
	require.NoError(t, err)
	require.Len(t, assets, 1)
	require.Equal(t, "My Song.wav", assets[0].Name)
	require.Equal(t, uploaded.URI, assets[0].URI)
	require.Equal(t, uploaded.StoragePath, assets[0].StoragePath)
}
