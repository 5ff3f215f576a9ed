package topproducts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseItems(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{name: "array", raw: `[{"produitId":"p1","quantity":2,"price":9.5}]`, want: 1},
		{name: "encoded string", raw: `"[{\"produitId\":\"p1\",\"quantity\":2},{\"produitId\":\"p2\",\"quantity\":1}]"`, want: 2},
		{name: "null", raw: `null`, want: 0},
		{name: "empty", raw: ``, want: 0},
		{name: "empty string", raw: `""`, want: 0},
		{name: "object", raw: `{"produitId":"p1"}`, wantErr: true},
		{name: "number", raw: `42`, wantErr: true},
		{name: "string without array", raw: `"p1,p2"`, wantErr: true},
		{name: "broken array", raw: `[{"produitId":`, wantErr: true},
		{name: "mixed elements", raw: `[1,{"produitId":"p1","quantity":2},"x",{"produitId":"p2","quantity":"3"}]`, want: 1},
		{name: "encoded mixed elements", raw: `"[null,{\"produitId\":\"p1\",\"quantity\":2}]"`, want: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			items, err := ParseItems(json.RawMessage(tc.raw))
			if tc.wantErr {
				require.ErrorIs(t, err, ErrMalformedItems)
				return
			}
			require.NoError(t, err)
			require.Len(t, items, tc.want)
		})
	}
}

func TestParseItemsKeepsOptionalPrice(t *testing.T) {
	items, err := ParseItems(json.RawMessage(`[{"produitId":"p1","quantity":1},{"produitId":"p2","quantity":1,"price":3}]`))
	require.NoError(t, err)
	require.Nil(t, items[0].Price)
	require.NotNil(t, items[1].Price)
	require.Equal(t, 3.0, *items[1].Price)
}

func TestParseItemsDropsOnlyBadElements(t *testing.T) {
	items, err := ParseItems(json.RawMessage(`[1,{"produitId":"p1","quantity":2}]`))
	require.NoError(t, err)
	require.Equal(t, []OrderItem{{ProduitID: "p1", Quantity: 2}}, items)
}
