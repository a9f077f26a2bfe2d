package scanning

import "context"

// ReceiptData contains the bill fields a vision model extracted from a receipt
type ReceiptData struct {
	Merchant   string     `json:"merchant"`
	Amount     float64    `json:"amount"`
	PayTime    string     `json:"pay_time"` // local wall clock, "2006-01-02 15:04:05"
	Category   string     `json:"category"`
	BillType   int        `json:"bill_type"`
	Platform   string     `json:"platform"`
	PayMethod  string     `json:"pay_method"`
	OrderNo    string     `json:"order_no"`
	Items      []LineItem `json:"items"`
	Confidence float64    `json:"confidence"`
}

// LineItem is one purchased item as reported by the model
type LineItem struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Scanner defines the interface for receipt scanning operations
type Scanner interface {
	// ScanReceipt analyzes a receipt image/PDF and extracts bill fields
	ScanReceipt(ctx context.Context, imageData []byte, contentType string) (*ReceiptData, error)
	// Close closes the scanner and releases resources
	Close() error
}
