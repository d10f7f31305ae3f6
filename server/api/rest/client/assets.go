package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"github.com/listenup/listenup/common/models"
	"github.com/listenup/listenup/server/api/rest/documents"
)

// UploadAsset stores the contents of reader as a new asset in the user's
// upload area, optionally nested under a folder.
func (a *APIClient) UploadAsset(ctx context.Context, userID models.UserID, folder string, filename string, reader io.Reader) (*documents.AssetsDocument, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if folder != "" {
		err := writer.WriteField("folder", folder)
		if err != nil {
			return nil, errors.Wrap(err, "error writing folder field")
		}
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, errors.Wrap(err, "error creating file part")
	}
	_, err = io.Copy(part, reader)
	if err != nil {
		return nil, errors.Wrapf(err, "error buffering file %q", filename)
	}
	err = writer.Close()
	if err != nil {
		return nil, errors.Wrap(err, "error finalizing multipart body")
	}

	headers := http.Header{}
	headers.Set("Content-Type", writer.FormDataContentType())
	uploadURL := fmt.Sprintf("/api/v1/users/%s/assets", userID)
	code, _, resBody, err := a.postRaw(ctx, headers, uploadURL, body.Bytes())
	if err != nil {
		return nil, err
	}
	if !a.isOneOf(code, []int{http.StatusOK, http.StatusCreated}) {
		return nil, a.makeHTTPError(code, resBody)
	}
	doc := &documents.AssetsDocument{}
	err = json.Unmarshal(resBody, doc)
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing response body: %s", string(resBody[:]))
	}
	return doc, nil
}

// ListAssets retrieves one level of the user's upload area. A non-empty
// folder scopes the listing and a non-empty pattern filters entries by glob.
func (a *APIClient) ListAssets(ctx context.Context, userID models.UserID, folder string, pattern string) (*documents.AssetsDocument, error) {
	query := url.Values{}
	if folder != "" {
		query.Set("folder", folder)
	}
	if pattern != "" {
		query.Set("pattern", pattern)
	}
	listURL := fmt.Sprintf("/api/v1/users/%s/assets", userID)
	if len(query) > 0 {
		listURL = fmt.Sprintf("%s?%s", listURL, query.Encode())
	}
	code, _, body, err := a.get(ctx, nil, listURL)
	if err != nil {
		return nil, err
	}
	if !a.isOneOf(code, []int{http.StatusOK}) {
		return nil, a.makeHTTPError(code, body)
	}
	doc := &documents.AssetsDocument{}
	err = json.Unmarshal(body, doc)
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing response body: %s", string(body[:]))
	}
	return doc, nil
}
