package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/listenup/listenup/common/gerror"
	"github.com/listenup/listenup/common/models"
	"github.com/listenup/listenup/server/api/rest/documents"
)

func TestUploadAsset(t *testing.T) {
	h := newTestAPIServer(t)

	data := []byte("not really audio, but good enough to store")
	doc, err := h.client.UploadAsset(context.Background(), "u1", "stems", "kick.wav", bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, doc.Assets, 1)

	asset := doc.Assets[0]
	require.Equal(t, "kick.wav", asset.Name)
	require.Equal(t, "user://uploads/stems/kick.wav", asset.URI)
	require.Equal(t, "users/u1/uploads/stems/kick.wav", asset.StoragePath)
	require.Equal(t, models.AssetTypeFile, asset.Type)
	require.Equal(t, int64(len(data)), asset.Size)
	require.Equal(t, h.serverURL+"/api/v1/users/u1/assets?folder=stems", asset.URL)

	require.Len(t, h.assets.uploads, 1)
	upload := h.assets.uploads[0]
	require.Equal(t, models.UserID("u1"), upload.userID)
	require.Equal(t, "stems", upload.folder)
	require.Equal(t, "kick.wav", upload.filename)
	require.Equal(t, data, upload.data)
}

func TestUploadMultipleFiles(t *testing.T) {
	h := newTestAPIServer(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("folder", "mix"))
	for _, name := range []string{"left.wav", "right.wav"} {
		part, err := writer.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(name + " bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	res, err := http.Post(h.serverURL+"/api/v1/users/u1/assets", writer.FormDataContentType(), body)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.Equal(t, h.serverURL+"/api/v1/users/u1/assets?folder=mix", res.Header.Get("Location"))

	doc := &documents.AssetsDocument{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(doc))
	require.Len(t, doc.Assets, 2)
	require.Equal(t, "left.wav", doc.Assets[0].Name)
	require.Equal(t, "right.wav", doc.Assets[1].Name)
	require.Len(t, h.assets.uploads, 2)
}

func TestUploadWithoutFilePartIsRejected(t *testing.T) {
	h := newTestAPIServer(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("folder", "stems"))
	require.NoError(t, writer.Close())

	res, err := http.Post(h.serverURL+"/api/v1/users/u1/assets", writer.FormDataContentType(), body)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	errDoc := &documents.ErrorDocument{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(errDoc))
	require.Equal(t, gerror.ErrCodeValidationFailed, errDoc.Code)
	require.Empty(t, h.assets.uploads)
}

func TestUploadStoreFailureIsInternal(t *testing.T) {
	h := newTestAPIServer(t)
	h.assets.uploadErr = gerror.NewErrAssetUploadFailed("Failed to store asset", errors.New("disk full"))

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "mix.wav")
	require.NoError(t, err)
	_, err = part.Write([]byte("bytes"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	// Raw POST rather than the API client: the client retries server errors
	// with backoff, which is exactly what we don't want in a test.
	res, err := http.Post(h.serverURL+"/api/v1/users/u1/assets", writer.FormDataContentType(), body)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusInternalServerError, res.StatusCode)

	// Internal details must not leak through the API
	errDoc := &documents.ErrorDocument{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(errDoc))
	require.Equal(t, gerror.ErrCodeInternal, errDoc.Code)
	require.NotContains(t, errDoc.Message, "disk full")
}

func TestListAssets(t *testing.T) {
	h := newTestAPIServer(t)

	h.assets.listed = []*models.Asset{
		{Name: "mix.wav", Type: models.AssetTypeFile, UserID: "u1", URI: "user://uploads/mix.wav"},
		{Name: "stems", Type: models.AssetTypeFolder, UserID: "u1", FileCount: 2},
	}

	doc, err := h.client.ListAssets(context.Background(), "u1", "", "*")
	require.NoError(t, err)
	require.Len(t, doc.Assets, 2)
	require.Equal(t, "mix.wav", doc.Assets[0].Name)
	require.Equal(t, models.AssetTypeFolder, doc.Assets[1].Type)
	require.Equal(t, 2, doc.Assets[1].FileCount)

	require.Len(t, h.assets.listCalls, 1)
	call := h.assets.listCalls[0]
	require.Equal(t, models.UserID("u1"), call.userID)
	require.Equal(t, "", call.folder)
	require.Equal(t, "*", call.pattern)
}

func TestListAssetsScopedToFolder(t *testing.T) {
	h := newTestAPIServer(t)

	doc, err := h.client.ListAssets(context.Background(), "u1", "stems", "*.wav")
	require.NoError(t, err)
	require.NotNil(t, doc.Assets)
	require.Empty(t, doc.Assets)

	require.Len(t, h.assets.listCalls, 1)
	call := h.assets.listCalls[0]
	require.Equal(t, "stems", call.folder)
	require.Equal(t, "*.wav", call.pattern)
}

func TestAssetListingLinksKeepTheFolderScope(t *testing.T) {
	h := newTestAPIServer(t)

	h.assets.listed = []*models.Asset{
		{Name: "kick.wav", Type: models.AssetTypeFile, UserID: "u1", Folder: "drum kit"},
	}
	doc, err := h.client.ListAssets(context.Background(), "u1", "drum kit", "")
	require.NoError(t, err)
	require.Len(t, doc.Assets, 1)
	require.Equal(t, fmt.Sprintf("%s/api/v1/users/u1/assets?folder=%s", h.serverURL, "drum+kit"), doc.Assets[0].URL)
}
