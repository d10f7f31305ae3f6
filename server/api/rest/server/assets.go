package server

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/listenup/listenup/common/gerror"
	"github.com/listenup/listenup/common/logger"
	"github.com/listenup/listenup/common/models"
	"github.com/listenup/listenup/server/api/rest/documents"
	"github.com/listenup/listenup/server/api/rest/routes"
	"github.com/listenup/listenup/server/services"
)

// uploadMemoryLimit is the number of bytes of an upload buffered in memory
// before the rest spills to temporary files.
const uploadMemoryLimit = 32 << 20

type AssetAPI struct {
	assetService services.AssetService
	*APIBase
}

func NewAssetAPI(assetService services.AssetService, logFactory logger.LogFactory) *AssetAPI {
	return &AssetAPI{
		assetService: assetService,
		APIBase:      NewAPIBase(logFactory("AssetAPI")),
	}
}

// Upload stores one or more files from a multipart form as assets in the
// user's upload area. Each file must be sent in a part named "file"; an
// optional "folder" field nests the uploads under a folder.
func (a *AssetAPI) Upload(w http.ResponseWriter, r *http.Request) {
	userID, err := routes.UserIDParam(r)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	err = r.ParseMultipartForm(uploadMemoryLimit)
	if err != nil {
		a.Error(w, r, gerror.NewErrValidationFailed("The request must be a multipart form upload").Wrap(err))
		return
	}
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		a.Error(w, r, gerror.NewErrValidationFailed("At least one file part named 'file' must be supplied"))
		return
	}
	folder := r.FormValue("folder")
	var uploaded []*models.Asset
	for _, header := range files {
		file, err := header.Open()
		if err != nil {
			a.Error(w, r, errors.Wrapf(err, "error opening uploaded file %q", header.Filename))
			return
		}
		asset, err := a.assetService.Upload(r.Context(), userID, folder, header.Filename, file)
		file.Close()
		if err != nil {
			a.Error(w, r, err)
			return
		}
		uploaded = append(uploaded, asset)
	}
	res := documents.MakeAssetsDocument(routes.RequestCtx(r), uploaded)
	a.Created(w, r, "", routes.MakeUserAssetsLink(routes.RequestCtx(r), userID, folder), res)
}

// List returns one level of the user's upload area. A "folder" query parameter
// scopes the listing to a folder and a "pattern" query parameter filters
// entries by glob.
func (a *AssetAPI) List(w http.ResponseWriter, r *http.Request) {
	userID, err := routes.UserIDParam(r)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	query := r.URL.Query()
	assets, err := a.assetService.List(r.Context(), userID, query.Get("folder"), query.Get("pattern"))
	if err != nil {
		a.Error(w, r, err)
		return
	}
	res := documents.MakeAssetsDocument(routes.RequestCtx(r), assets)
	a.JSON(w, r, res)
}
