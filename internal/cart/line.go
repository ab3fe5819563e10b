package cart

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// SelectedAttribute captures one configured product option on a cart line.
type SelectedAttribute struct {
	AttributeID   string `json:"attribute_id"`
	AttributeName string `json:"attribute_name"`
	ValueID       string `json:"value_id"`
	ValueName     string `json:"value_name"`
	PriceModifier int64  `json:"price_modifier"`
}

// Line is one cart entry: a product with a specific option configuration.
// UnitPrice is in minor currency units and already includes attribute price
// modifiers applied by the caller.
type Line struct {
	Key             string              `json:"key"`
	ProductID       string              `json:"product_id"`
	Title           string              `json:"title"`
	UnitPrice       int64               `json:"unit_price"`
	DiscountPercent int                 `json:"discount_percent"`
	Quantity        int                 `json:"quantity"`
	Attributes      []SelectedAttribute `json:"attributes"`
}

// LineKey derives the uniqueness key for a product and its chosen options:
// the product id joined with the sorted attribute value ids. Two lines with
// the same key represent the same configuration and must be merged.
func LineKey(productID string, attrs []SelectedAttribute) string {
	if len(attrs) == 0 {
		return productID
	}
	ids := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		ids = append(ids, attr.ValueID)
	}
	sort.Strings(ids)
	return productID + "-" + strings.Join(ids, "-")
}

// LineTotal returns the discounted line total in minor units. The discounted
// unit price is rounded half-up to a whole minor unit before multiplying by
// quantity, so totals never accumulate fractional drift.
func (l Line) LineTotal() int64 {
	unit := decimal.NewFromInt(l.UnitPrice)
	if l.DiscountPercent > 0 {
		factor := decimal.NewFromInt(int64(100 - l.DiscountPercent)).Div(decimal.NewFromInt(100))
		unit = unit.Mul(factor).Round(0)
	}
	return unit.Mul(decimal.NewFromInt(int64(l.Quantity))).IntPart()
}

// decodeSnapshot parses a persisted cart snapshot. Corrupt payloads or entries
// yield an empty cart: persisted state is advisory, never fatal.
func decodeSnapshot(raw string) []Line {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var lines []Line
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return nil
	}
	sane := lines[:0]
	for _, line := range lines {
		if line.ProductID == "" || line.Quantity < 1 {
			continue
		}
		if line.DiscountPercent < 0 || line.DiscountPercent > 100 {
			line.DiscountPercent = 0
		}
		// recompute the key so hand-edited or stale snapshots cannot split lines
		line.Key = LineKey(line.ProductID, line.Attributes)
		sane = append(sane, line)
	}
	return sane
}

func encodeSnapshot(lines []Line) (string, error) {
	if lines == nil {
		lines = []Line{}
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
