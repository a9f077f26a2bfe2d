package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// BillType is the bill direction. Category taxonomies are partitioned by it.
type BillType int

const (
	BillTypeExpense BillType = 1
	BillTypeIncome  BillType = 2
)

// Valid reports whether t is a known bill direction.
func (t BillType) Valid() bool {
	return t == BillTypeExpense || t == BillTypeIncome
}

func (t BillType) String() string {
	switch t {
	case BillTypeExpense:
		return "expense"
	case BillTypeIncome:
		return "income"
	default:
		return fmt.Sprintf("bill_type(%d)", int(t))
	}
}

// Category is a node of the category tree returned by the backend
type Category struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	ParentID  int64      `json:"parent_id"`
	Icon      string     `json:"icon"`
	SortOrder int        `json:"sort_order"`
	Children  []Category `json:"children,omitempty"`
}

// BillCategory is the category summary embedded in a bill
type BillCategory struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// Bill is a persisted bill record
type Bill struct {
	ID       int64           `json:"id"`
	UUID     string          `json:"uuid"`
	Amount   decimal.Decimal `json:"amount"`
	BillType BillType        `json:"bill_type"`
	Platform string          `json:"platform"`
	Merchant string          `json:"merchant"`
	Category *BillCategory   `json:"category,omitempty"`
	PayTime  string          `json:"pay_time"` // RFC 3339 as sent by the server
	Remark   string          `json:"remark"`
}

// BillFields is the body of a create or update request.
// PayTime must carry the user's UTC offset; the backend stores instants.
type BillFields struct {
	UUID       string          `json:"uuid,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	BillType   BillType        `json:"bill_type"`
	Platform   string          `json:"platform,omitempty"`
	Merchant   string          `json:"merchant"`
	Remark     string          `json:"remark"`
	PayTime    string          `json:"pay_time"`
	CategoryID int64           `json:"category_id"`
}

// LineItem is a single purchased item found on a receipt
type LineItem struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// Recognition is the payload of an extract-only recognition call
type Recognition struct {
	Platform    string          `json:"platform"`
	Amount      decimal.Decimal `json:"amount"`
	Merchant    string          `json:"merchant"`
	BillType    BillType        `json:"bill_type"`
	Category    string          `json:"category"` // category name, not id
	SubCategory string          `json:"sub_category"`
	PayTime     string          `json:"pay_time"`
	PayMethod   string          `json:"pay_method"`
	OrderNo     string          `json:"order_no"`
	Items       []LineItem      `json:"items"`
	Confidence  float64         `json:"confidence"`
}

// Remark is "<platform> - <first item>", or whichever half is present
func (r *Recognition) Remark() string {
	var parts []string
	if p := strings.TrimSpace(r.Platform); p != "" {
		parts = append(parts, p)
	}
	if len(r.Items) > 0 {
		if name := strings.TrimSpace(r.Items[0].Name); name != "" {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, " - ")
}

// Upload is a receipt image handed to a recognition endpoint
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}
