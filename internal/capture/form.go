package capture

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zzjbattlefield/smart-ledger-web/internal/ledger"
)

// Category id 0 means the user still has to pick one
const (
	UnsetCategoryID   int64 = 0
	UnsetCategoryName       = "请选择分类"
)

// Form is the editable projection of an item shown on the review surface
type Form struct {
	Amount       string          `json:"amount"`
	Merchant     string          `json:"merchant"`
	Remark       string          `json:"remark"`
	PayTime      string          `json:"pay_time"` // local wall clock, ledger.WallClockLayout
	CategoryID   int64           `json:"category_id"`
	CategoryName string          `json:"category_name"`
	BillType     ledger.BillType `json:"bill_type"`
}

// FormPatch carries a partial form edit. Nil fields are left alone.
type FormPatch struct {
	Amount       *string          `json:"amount,omitempty"`
	Merchant     *string          `json:"merchant,omitempty"`
	Remark       *string          `json:"remark,omitempty"`
	PayTime      *string          `json:"pay_time,omitempty"`
	CategoryID   *int64           `json:"category_id,omitempty"`
	CategoryName *string          `json:"category_name,omitempty"`
	BillType     *ledger.BillType `json:"bill_type,omitempty"`
}

// fieldMask records which form fields the user has edited
type fieldMask uint8

const (
	fieldAmount fieldMask = 1 << iota
	fieldMerchant
	fieldRemark
	fieldPayTime
	fieldCategory
	fieldBillType
)

// DefaultForm is the form of a freshly created item
func DefaultForm(now time.Time) Form {
	return Form{
		PayTime:      now.Format(ledger.WallClockLayout),
		CategoryID:   ledger.DefaultCategoryID,
		CategoryName: ledger.DefaultCategoryName,
		BillType:     ledger.BillTypeExpense,
	}
}

// Apply returns f with the patch applied. Switching the bill direction
// clears the category because the taxonomies are disjoint; a category in
// the same patch is applied after the reset.
func (f Form) Apply(p FormPatch) Form {
	f, _ = f.apply(p)
	return f
}

func (f Form) apply(p FormPatch) (Form, fieldMask) {
	var touched fieldMask
	if p.BillType != nil {
		touched |= fieldBillType
		if *p.BillType != f.BillType {
			f.BillType = *p.BillType
			f.CategoryID = UnsetCategoryID
			f.CategoryName = UnsetCategoryName
			touched |= fieldCategory
		}
	}
	if p.Amount != nil {
		f.Amount = strings.TrimSpace(*p.Amount)
		touched |= fieldAmount
	}
	if p.Merchant != nil {
		f.Merchant = *p.Merchant
		touched |= fieldMerchant
	}
	if p.Remark != nil {
		f.Remark = *p.Remark
		touched |= fieldRemark
	}
	if p.PayTime != nil {
		f.PayTime = *p.PayTime
		touched |= fieldPayTime
	}
	if p.CategoryID != nil {
		f.CategoryID = *p.CategoryID
		touched |= fieldCategory
	}
	if p.CategoryName != nil {
		f.CategoryName = *p.CategoryName
		touched |= fieldCategory
	}
	return f, touched
}

// validate checks a patch before it reaches the store
func (p FormPatch) validate() error {
	if p.BillType != nil && !p.BillType.Valid() {
		return fmt.Errorf("%w: unknown bill type %d", ErrValidationRejected, int(*p.BillType))
	}
	if p.CategoryID != nil && *p.CategoryID < 0 {
		return fmt.Errorf("%w: negative category id", ErrValidationRejected)
	}
	return nil
}

// keep copies the fields in mask from user over derived
func keep(derived, user Form, mask fieldMask) Form {
	if mask&fieldAmount != 0 {
		derived.Amount = user.Amount
	}
	if mask&fieldMerchant != 0 {
		derived.Merchant = user.Merchant
	}
	if mask&fieldRemark != 0 {
		derived.Remark = user.Remark
	}
	if mask&fieldPayTime != 0 {
		derived.PayTime = user.PayTime
	}
	if mask&fieldBillType != 0 {
		derived.BillType = user.BillType
	}
	if mask&(fieldCategory|fieldBillType) != 0 {
		derived.CategoryID = user.CategoryID
		derived.CategoryName = user.CategoryName
	}
	return derived
}

// formFromRecognition fills a form from an extract-only result. cat is the
// resolved category, or nil when the name matched nothing.
func formFromRecognition(rec *ledger.Recognition, cat *ledger.Category, loc *time.Location, now time.Time) Form {
	f := Form{
		Amount:   rec.Amount.String(),
		Merchant: rec.Merchant,
		Remark:   rec.Remark(),
		PayTime:  wallClock(rec.PayTime, loc, now),
		BillType: rec.BillType,
	}
	if !f.BillType.Valid() {
		f.BillType = ledger.BillTypeExpense
	}
	switch {
	case cat != nil:
		f.CategoryID = cat.ID
		f.CategoryName = cat.Name
	case f.BillType == ledger.BillTypeExpense:
		f.CategoryID = ledger.DefaultCategoryID
		f.CategoryName = ledger.DefaultCategoryName
	default:
		f.CategoryID = UnsetCategoryID
		f.CategoryName = UnsetCategoryName
	}
	return f
}

// formFromBill fills a form from a persisted bill
func formFromBill(bill *ledger.Bill, loc *time.Location, now time.Time) Form {
	f := Form{
		Amount:       bill.Amount.String(),
		Merchant:     bill.Merchant,
		Remark:       bill.Remark,
		PayTime:      wallClock(bill.PayTime, loc, now),
		CategoryID:   ledger.DefaultCategoryID,
		CategoryName: ledger.DefaultCategoryName,
		BillType:     bill.BillType,
	}
	if !f.BillType.Valid() {
		f.BillType = ledger.BillTypeExpense
	}
	if bill.Category != nil && bill.Category.ID != 0 {
		f.CategoryID = bill.Category.ID
		f.CategoryName = bill.Category.Name
	}
	return f
}

func wallClock(value string, loc *time.Location, now time.Time) string {
	if value != "" {
		if t, err := ledger.ParsePayTime(value, loc); err == nil {
			return t.Format(ledger.WallClockLayout)
		}
	}
	return now.In(loc).Format(ledger.WallClockLayout)
}

// billFields validates the form and builds a create or update body. The pay
// time is sent with loc's offset at that instant.
func (f Form) billFields(loc *time.Location) (ledger.BillFields, error) {
	raw := strings.TrimSpace(f.Amount)
	if raw == "" {
		return ledger.BillFields{}, fmt.Errorf("%w: amount is required", ErrValidationRejected)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return ledger.BillFields{}, fmt.Errorf("%w: invalid amount %q", ErrValidationRejected, raw)
	}
	if !f.BillType.Valid() {
		return ledger.BillFields{}, fmt.Errorf("%w: unknown bill type %d", ErrValidationRejected, int(f.BillType))
	}
	payTime, err := ledger.OffsetTimestamp(f.PayTime, loc)
	if err != nil {
		return ledger.BillFields{}, fmt.Errorf("%w: %v", ErrValidationRejected, err)
	}
	return ledger.BillFields{
		Amount:     amount,
		BillType:   f.BillType,
		Merchant:   f.Merchant,
		Remark:     f.Remark,
		PayTime:    payTime,
		CategoryID: f.CategoryID,
	}, nil
}
