package documents

// GetRootDocumentResponse maps well-known entry point names to their URLs.
type GetRootDocumentResponse map[string]string
