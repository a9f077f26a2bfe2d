package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const payTimeLayout = "2006-01-02 15:04:05"

var payTimeFormats = []string{
	payTimeLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
}

// parseReceiptJSON parses and validates the JSON answer of a vision model
func parseReceiptJSON(text string) (*ReceiptData, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Models sometimes wrap the object in prose; keep the outermost braces
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	if err := validateReceiptJSON([]byte(text)); err != nil {
		return nil, err
	}

	var data ReceiptData
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	data.PayTime = normalizePayTime(data.PayTime)
	data.Merchant = strings.TrimSpace(data.Merchant)
	data.Category = strings.TrimSpace(data.Category)
	data.Platform = strings.TrimSpace(data.Platform)
	if data.BillType != 1 && data.BillType != 2 {
		data.BillType = 1
	}

	return &data, nil
}

// normalizePayTime rewrites a wall-clock pay time into payTimeLayout. Values
// with a UTC offset stay RFC 3339 so the instant survives until the caller
// converts it into its own zone. Unreadable values become empty so the
// caller applies its own default.
func normalizePayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.Format(time.RFC3339)
	}
	for _, format := range payTimeFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t.Format(payTimeLayout)
		}
	}
	return ""
}
