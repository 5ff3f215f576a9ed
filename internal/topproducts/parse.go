package topproducts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedItems reports an items payload that is neither an array nor a
// string holding an array.
var ErrMalformedItems = errors.New("topproducts: malformed order items")

// ItemParser decodes the items payload of an order.
type ItemParser func(raw json.RawMessage) ([]OrderItem, error)

// ParseItems accepts a JSON array, a JSON string containing an array, or an
// empty/null payload.
func ParseItems(raw json.RawMessage) ([]OrderItem, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	switch trimmed[0] {
	case '[':
		return decodeArray(trimmed)
	case '"':
		var encoded string
		if err := json.Unmarshal(trimmed, &encoded); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedItems, err)
		}
		inner := bytes.TrimSpace([]byte(encoded))
		if len(inner) == 0 || bytes.Equal(inner, []byte("null")) {
			return nil, nil
		}
		if inner[0] != '[' {
			return nil, ErrMalformedItems
		}
		return decodeArray(inner)
	default:
		return nil, ErrMalformedItems
	}
}

// decodeArray decodes each element on its own; elements that are not item
// objects are dropped and the rest of the order is kept.
func decodeArray(raw []byte) ([]OrderItem, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedItems, err)
	}
	items := make([]OrderItem, 0, len(elems))
	for _, elem := range elems {
		if bytes.Equal(bytes.TrimSpace(elem), []byte("null")) {
			continue
		}
		var item OrderItem
		if err := json.Unmarshal(elem, &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}
