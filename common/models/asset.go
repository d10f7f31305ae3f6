package models

const (
	AssetTypeFile   AssetType = "file"
	AssetTypeFolder AssetType = "folder"
)

// AssetType distinguishes uploaded files from the folders that group them.
type AssetType string

func (s AssetType) String() string {
	return string(s)
}

// Asset describes an uploaded file, or a folder of uploads, in a user's
// upload area.
type Asset struct {
	Name string `json:"name"`
	// URI is the user-scoped locator for the asset, e.g.
	// user://uploads/stems/mix.wav.
	URI  string    `json:"asset_uri,omitempty"`
	Type AssetType `json:"type"`
	// Folder is the upload subfolder the asset lives in, empty for the top
	// level.
	Folder string `json:"folder,omitempty"`
	UserID UserID `json:"user_id,omitempty"`
	// StoragePath is the storage-root-relative path of the file as stored,
	// suitable for use directly as a step input.
	StoragePath string `json:"storage_path,omitempty"`
	// ContentType is sniffed from the uploaded bytes, never taken from the
	// client.
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size_bytes,omitempty"`
	// FileCount is the number of files directly inside a folder asset.
	FileCount  int   `json:"file_count,omitempty"`
	UploadedAt *Time `json:"uploaded_at,omitempty"`
}

// AssetDescriptor identifies a single stored asset file within an asset
// store.
type AssetDescriptor struct {
	Key  string
	Size int64
}
