package documents

import (
	"github.com/listenup/listenup/common/models"
	"github.com/listenup/listenup/server/api/rest/routes"
)

// Asset describes one entry in a user's upload area, either a file or a
// folder of files.
type Asset struct {
	baseResourceDocument

	// Name of the asset as originally uploaded.
	Name string `json:"name"`
	// URI is the user-scoped address of a file asset, e.g. "user://uploads/mix.wav".
	URI string `json:"asset_uri,omitempty"`
	// Type distinguishes file assets from folder entries.
	Type models.AssetType `json:"type"`
	// Folder the asset lives in, empty for the top level of the upload area.
	Folder string        `json:"folder,omitempty"`
	UserID models.UserID `json:"user_id"`
	// StoragePath locates the asset relative to the storage root and is
	// suitable for use directly as a step input.
	StoragePath string `json:"storage_path,omitempty"`
	// ContentType sniffed from the asset's bytes.
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size_bytes,omitempty"`
	// FileCount is the number of files directly inside a folder asset.
	FileCount  int          `json:"file_count,omitempty"`
	UploadedAt *models.Time `json:"uploaded_at,omitempty"`
}

func MakeAsset(rctx routes.RequestContext, asset *models.Asset) *Asset {
	return &Asset{
		baseResourceDocument: baseResourceDocument{
			URL: routes.MakeUserAssetsLink(rctx, asset.UserID, asset.Folder),
		},

		Name:        asset.Name,
		URI:         asset.URI,
		Type:        asset.Type,
		Folder:      asset.Folder,
		UserID:      asset.UserID,
		StoragePath: asset.StoragePath,
		ContentType: asset.ContentType,
		Size:        asset.Size,
		FileCount:   asset.FileCount,
		UploadedAt:  asset.UploadedAt,
	}
}

func MakeAssets(rctx routes.RequestContext, assets []*models.Asset) []*Asset {
	var docs []*Asset
	for _, model := range assets {
		docs = append(docs, MakeAsset(rctx, model))
	}
	return docs
}

// AssetsDocument holds a list of assets. The list is always present, even when empty.
type AssetsDocument struct {
	Assets []*Asset `json:"assets"`
}

func MakeAssetsDocument(rctx routes.RequestContext, assets []*models.Asset) *AssetsDocument {
	doc := &AssetsDocument{Assets: MakeAssets(rctx, assets)}
	if doc.Assets == nil {
		doc.Assets = []*Asset{}
	}
	return doc
}
