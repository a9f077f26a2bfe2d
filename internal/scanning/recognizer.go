package scanning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zzjbattlefield/smart-ledger-web/internal/ledger"
)

// BillCreator persists bills for RecognizeAndPersist
type BillCreator interface {
	Create(ctx context.Context, fields ledger.BillFields) (*ledger.Bill, error)
}

// CategoryResolver maps a recognized category name to a category id
type CategoryResolver interface {
	Resolve(ctx context.Context, billType ledger.BillType, name string) (ledger.Category, bool, error)
}

// Recognizer runs recognition with a local or hosted vision model instead of
// the backend's AI endpoints. Persisting goes through the regular bill API.
type Recognizer struct {
	scanner    Scanner
	bills      BillCreator
	categories CategoryResolver
	location   *time.Location
	now        func() time.Time
	newUUID    func() string
	logger     *slog.Logger
}

// RecognizerOption configures a Recognizer
type RecognizerOption func(*Recognizer)

// WithCategories resolves category names to ids when persisting
func WithCategories(categories CategoryResolver) RecognizerOption {
	return func(r *Recognizer) {
		r.categories = categories
	}
}

// WithLocation sets the zone receipts are read in
func WithLocation(loc *time.Location) RecognizerOption {
	return func(r *Recognizer) {
		if loc != nil {
			r.location = loc
		}
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) RecognizerOption {
	return func(r *Recognizer) {
		r.now = now
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) RecognizerOption {
	return func(r *Recognizer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRecognizer creates a Recognizer
func NewRecognizer(scanner Scanner, bills BillCreator, opts ...RecognizerOption) *Recognizer {
	r := &Recognizer{
		scanner:  scanner,
		bills:    bills,
		location: time.Local,
		now:      time.Now,
		newUUID:  uuid.NewString,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecognizeOnly scans the receipt and returns the extracted fields
func (r *Recognizer) RecognizeOnly(ctx context.Context, upload ledger.Upload) (*ledger.Recognition, error) {
	data, err := r.scanner.ScanReceipt(ctx, upload.Data, upload.ContentType)
	if err != nil {
		r.logger.Error("Failed to scan receipt",
			"filename", upload.Filename,
			"content_type", upload.ContentType,
			"file_size", len(upload.Data),
			"error", err,
		)
		return nil, fmt.Errorf("scanning receipt: %w", err)
	}
	return toRecognition(data), nil
}

// RecognizeAndPersist scans the receipt and creates a bill from the result
func (r *Recognizer) RecognizeAndPersist(ctx context.Context, upload ledger.Upload) (*ledger.Bill, error) {
	rec, err := r.RecognizeOnly(ctx, upload)
	if err != nil {
		return nil, err
	}

	payTime := r.now().In(r.location)
	if rec.PayTime != "" {
		if t, err := ledger.ParsePayTime(rec.PayTime, r.location); err == nil {
			payTime = t
		}
	}

	platform := rec.Platform
	if platform == "" {
		platform = "AI"
	}

	fields := ledger.BillFields{
		UUID:       r.newUUID(),
		Amount:     rec.Amount,
		BillType:   rec.BillType,
		Platform:   platform,
		Merchant:   rec.Merchant,
		Remark:     rec.Remark(),
		PayTime:    payTime.Format(ledger.OffsetLayout),
		CategoryID: r.resolveCategory(ctx, rec),
	}

	bill, err := r.bills.Create(ctx, fields)
	if err != nil {
		return nil, fmt.Errorf("saving recognized bill: %w", err)
	}
	return bill, nil
}

func (r *Recognizer) resolveCategory(ctx context.Context, rec *ledger.Recognition) int64 {
	if r.categories == nil || rec.Category == "" {
		return ledger.DefaultCategoryID
	}
	cat, found, err := r.categories.Resolve(ctx, rec.BillType, rec.Category)
	if err != nil {
		r.logger.Warn("Failed to resolve category", "category", rec.Category, "error", err)
		return ledger.DefaultCategoryID
	}
	if !found {
		return ledger.DefaultCategoryID
	}
	return cat.ID
}

func toRecognition(data *ReceiptData) *ledger.Recognition {
	rec := &ledger.Recognition{
		Platform:   data.Platform,
		Amount:     decimal.NewFromFloat(data.Amount).Round(2),
		Merchant:   data.Merchant,
		BillType:   ledger.BillType(data.BillType),
		Category:   data.Category,
		PayTime:    data.PayTime,
		PayMethod:  data.PayMethod,
		OrderNo:    data.OrderNo,
		Confidence: data.Confidence,
	}
	if !rec.BillType.Valid() {
		rec.BillType = ledger.BillTypeExpense
	}
	for _, item := range data.Items {
		rec.Items = append(rec.Items, ledger.LineItem{
			Name:     strings.TrimSpace(item.Name),
			Price:    decimal.NewFromFloat(item.Price).Round(2),
			Quantity: item.Quantity,
		})
	}
	return rec
}
