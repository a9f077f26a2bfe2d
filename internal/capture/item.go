package capture

import "github.com/zzjbattlefield/smart-ledger-web/internal/ledger"

// Status is the position of an item in the capture state machine
type Status string

const (
	StatusWaiting     Status = "waiting"
	StatusAnalyzing   Status = "analyzing"
	StatusReviewReady Status = "reviewReady"
	StatusError       Status = "error"
	StatusSaving      Status = "saving"
	StatusCompleted   Status = "completed"
)

// Image is the receipt an item was created from. The engine keeps the bytes
// so a failed recognition can be retried.
type Image struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
	BlobRef     string `json:"blob_ref,omitempty"`
	PreviewRef  string `json:"preview_ref,omitempty"`
}

func (img *Image) upload() ledger.Upload {
	return ledger.Upload{
		Filename:    img.Filename,
		ContentType: img.ContentType,
		Data:        img.Data,
	}
}

// Item is one receipt image or manual entry moving through the queue
type Item struct {
	ID       string              `json:"id"`
	Source   *Image              `json:"source,omitempty"`
	Status   Status              `json:"status"`
	Result   *ledger.Recognition `json:"result,omitempty"`
	ServerID int64               `json:"server_id,omitempty"`
	Form     Form                `json:"form"`
	Err      string              `json:"error,omitempty"`

	touched fieldMask
	preSave Status
}

// Manual reports whether the item was created without an image
func (i Item) Manual() bool {
	return i.Source == nil
}

// Persisted reports whether the item has a server-side bill
func (i Item) Persisted() bool {
	return i.ServerID != 0
}

func (i Item) platformTag() string {
	if i.Manual() {
		return "Manual"
	}
	return "AI/ManualConfirm"
}
