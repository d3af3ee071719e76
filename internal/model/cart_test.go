package model

import (
	"encoding/json"
	"slices"
	"testing"
)

func TestCartQuantity(t *testing.T) {
	cart := Cart{"A": {"M": 2}}

	if got := cart.Quantity("A", "M"); got != 2 {
		t.Errorf("Quantity(A, M) = %d, want 2", got)
	}
	if got := cart.Quantity("A", "L"); got != 0 {
		t.Errorf("Quantity(A, L) = %d, want 0", got)
	}
	if got := cart.Quantity("B", "M"); got != 0 {
		t.Errorf("Quantity(B, M) = %d, want 0", got)
	}
}

func TestCartClone(t *testing.T) {
	orig := Cart{"A": {"M": 1}}
	clone := orig.Clone()
	clone["A"]["M"] = 5
	clone["B"] = map[string]int{"S": 1}

	if orig["A"]["M"] != 1 {
		t.Errorf("mutating clone changed original: %v", orig)
	}
	if _, ok := orig["B"]; ok {
		t.Error("mutating clone added product to original")
	}

	var nilCart Cart
	if c := nilCart.Clone(); c == nil || !c.IsEmpty() {
		t.Errorf("Clone of nil cart = %v, want empty non-nil", c)
	}
}

func TestSizeListUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		body string
		want SizeList
	}{
		{name: "array", body: `{"sizes":["S","M"]}`, want: SizeList{"S", "M"}},
		{name: "encoded string", body: `{"sizes":"[\"M\",\"L\"]"}`, want: SizeList{"M", "L"}},
		{name: "malformed string", body: `{"sizes":"not json"}`, want: nil},
		{name: "null", body: `{"sizes":null}`, want: nil},
		{name: "number", body: `{"sizes":3}`, want: nil},
		{name: "missing", body: `{}`, want: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var p Product
			if err := json.Unmarshal([]byte(tc.body), &p); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if !slices.Equal(p.Sizes, tc.want) {
				t.Errorf("Sizes = %v, want %v", p.Sizes, tc.want)
			}
		})
	}
}
