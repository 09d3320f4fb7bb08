package cart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ProductRef identifies a product as the storefront sent it. Numeric ids are
// echoed back as JSON numbers and string ids as strings.
type ProductRef struct {
	ID      string
	Numeric bool
}

// String returns the identifier used for inventory lookups.
func (p ProductRef) String() string {
	return strings.TrimSpace(p.ID)
}

// UnmarshalJSON accepts a JSON string or number. null leaves the ref empty.
func (p *ProductRef) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*p = ProductRef{}
		return nil
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*p = ProductRef{ID: s}
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("productId must be a string or number: %w", err)
	}
	id, err := integralID(n)
	if err != nil {
		return err
	}
	*p = ProductRef{ID: id, Numeric: true}
	return nil
}

// maxExactFloat is the largest integer a float64 holds exactly.
const maxExactFloat = 1 << 53

// integralID renders a numeric id in canonical integer form, so 7, 7.0 and
// 7e0 name the same product.
func integralID(n json.Number) (string, error) {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > maxExactFloat {
		return "", fmt.Errorf("productId %s must be an integer", n)
	}
	return strconv.FormatInt(int64(f), 10), nil
}

// MarshalJSON writes the identifier in the form it was received.
func (p ProductRef) MarshalJSON() ([]byte, error) {
	if p.Numeric {
		return []byte(p.ID), nil
	}
	return json.Marshal(p.ID)
}
