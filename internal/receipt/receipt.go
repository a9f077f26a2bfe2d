package receipt

import "time"

// Upload records a receipt file written to storage for a queued item.
// Records outlive the in-memory queue so stale files can be pruned on start.
type Upload struct {
	ItemID      string    `json:"item_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int       `json:"size"`
	BlobRef     string    `json:"blob_ref"`
	PreviewRef  string    `json:"preview_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// File is a receipt file received from a client
type File struct {
	Filename    string
	ContentType string
	Data        []byte
}
