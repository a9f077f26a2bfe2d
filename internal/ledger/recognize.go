package ledger

import (
	"context"
	"fmt"
)

// Recognizer calls the backend's AI endpoints. Both calls are single-shot;
// nothing here retries.
type Recognizer struct {
	client *Client
}

// NewRecognizer creates a Recognizer
func NewRecognizer(client *Client) *Recognizer {
	return &Recognizer{client: client}
}

// RecognizeOnly extracts bill fields from a receipt without persisting anything
func (r *Recognizer) RecognizeOnly(ctx context.Context, upload Upload) (*Recognition, error) {
	var rec Recognition
	if err := r.client.doUpload(ctx, "/ai/recognize", upload, &rec); err != nil {
		return nil, fmt.Errorf("recognizing receipt: %w", err)
	}
	return &rec, nil
}

// RecognizeAndPersist extracts bill fields and creates the bill server-side
// in one operation
func (r *Recognizer) RecognizeAndPersist(ctx context.Context, upload Upload) (*Bill, error) {
	var bill Bill
	if err := r.client.doUpload(ctx, "/ai/recognize-and-save", upload, &bill); err != nil {
		return nil, fmt.Errorf("recognizing and saving receipt: %w", err)
	}
	return &bill, nil
}
