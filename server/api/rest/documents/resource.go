package documents

type ResourceDocument interface {
	// GetLink returns a link that can be used to fetch the resource from the server.
	GetLink() string
	// GetID returns the unique identifier of the resource.
	GetID() string
}

type baseResourceDocument struct {
	URL string `json:"url"`
}

func (d *baseResourceDocument) GetLink() string {
	return d.URL
}
