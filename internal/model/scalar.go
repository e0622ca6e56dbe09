package model

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// FlexString decodes a JSON string or number into a trimmed string.
// null and anything else decode to "".
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}

	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(strings.TrimSpace(v))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		*s = ""
		return nil
	}
	*s = FlexString(n.String())
	return nil
}

// String returns the plain string value.
func (s FlexString) String() string {
	return string(s)
}

// Quantity is a fee quantity. Upstream sends numbers, numeric strings, or
// garbage; anything that is not numeric decodes to zero.
type Quantity struct {
	decimal.Decimal
}

// NewQuantity builds a Quantity from an integer.
func NewQuantity(n int64) Quantity {
	return Quantity{decimal.NewFromInt(n)}
}

// UnmarshalJSON implements json.Unmarshaler and never fails.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			q.Decimal = decimal.Zero
			return nil
		}
		data = []byte(strings.TrimSpace(v))
	}

	d, err := decimal.NewFromString(string(data))
	if err != nil {
		q.Decimal = decimal.Zero
		return nil
	}
	q.Decimal = d
	return nil
}

// MarshalJSON renders the quantity as a bare JSON number.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.Decimal.String()), nil
}

// Count is a non-fractional count such as a pallet tally. It accepts numbers
// (5, 5.0), numeric strings ("5") and null; anything else decodes to zero.
// Fractions are truncated.
type Count int64

// UnmarshalJSON implements json.Unmarshaler and never fails.
func (c *Count) UnmarshalJSON(data []byte) error {
	var q Quantity
	_ = q.UnmarshalJSON(data)
	*c = Count(q.IntPart())
	return nil
}
