package export

// Artifact is a rendered export with its download metadata.
type Artifact struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Body     []byte `json:"body"`
}
