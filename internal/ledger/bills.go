package ledger

import (
	"context"
	"fmt"
	"net/http"
)

// Bills creates and updates bill records.
//
// Create carries no idempotency key: a create retried after a timeout that
// actually succeeded server-side produces a second record.
type Bills struct {
	client *Client
}

// NewBills creates a Bills client
func NewBills(client *Client) *Bills {
	return &Bills{client: client}
}

// Create persists a new bill
func (b *Bills) Create(ctx context.Context, fields BillFields) (*Bill, error) {
	var bill Bill
	if err := b.client.doJSON(ctx, http.MethodPost, "/bills", fields, &bill); err != nil {
		return nil, fmt.Errorf("creating bill: %w", err)
	}
	return &bill, nil
}

// Update replaces the editable fields of the bill with the given id
func (b *Bills) Update(ctx context.Context, id int64, fields BillFields) (*Bill, error) {
	var bill Bill
	path := fmt.Sprintf("/bills/%d", id)
	if err := b.client.doJSON(ctx, http.MethodPut, path, fields, &bill); err != nil {
		return nil, fmt.Errorf("updating bill %d: %w", id, err)
	}
	return &bill, nil
}
