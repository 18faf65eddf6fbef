package pager

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		name      string
		items     []int
		page      int
		size      int
		wantItems []int
		wantPage  int
		wantTotal int
	}{
		{name: "first page", items: seq(10), page: 1, size: 4, wantItems: []int{1, 2, 3, 4}, wantPage: 1, wantTotal: 3},
		{name: "last partial page", items: seq(10), page: 3, size: 4, wantItems: []int{9, 10}, wantPage: 3, wantTotal: 3},
		{name: "beyond last clamps", items: seq(10), page: 99, size: 4, wantItems: []int{9, 10}, wantPage: 3, wantTotal: 3},
		{name: "zero clamps to first", items: seq(10), page: 0, size: 4, wantItems: []int{1, 2, 3, 4}, wantPage: 1, wantTotal: 3},
		{name: "negative clamps to first", items: seq(5), page: -3, size: 2, wantItems: []int{1, 2}, wantPage: 1, wantTotal: 3},
		{name: "fewer than a page", items: seq(3), page: 1, size: 4, wantItems: []int{1, 2, 3}, wantPage: 1, wantTotal: 1},
		{name: "exact multiple", items: seq(8), page: 2, size: 4, wantItems: []int{5, 6, 7, 8}, wantPage: 2, wantTotal: 2},
		{name: "empty has zero pages", items: nil, page: 1, size: 4, wantItems: []int{}, wantPage: 1, wantTotal: 0},
		{name: "empty with large page", items: []int{}, page: 7, size: 4, wantItems: []int{}, wantPage: 1, wantTotal: 0},
		{name: "non-positive size acts as one", items: seq(3), page: 2, size: 0, wantItems: []int{2}, wantPage: 2, wantTotal: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Paginate(tt.items, tt.page, tt.size)
			if diff := cmp.Diff(tt.wantItems, got.Items); diff != "" {
				t.Errorf("items mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantPage, got.Page); diff != "" {
				t.Errorf("page mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantTotal, got.TotalPages); diff != "" {
				t.Errorf("total pages mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		page, total, want int
	}{
		{page: 2, total: 5, want: 2},
		{page: 6, total: 5, want: 5},
		{page: 0, total: 5, want: 1},
		{page: 3, total: 0, want: 1},
	}

	for _, tt := range tests {
		if got := Clamp(tt.page, tt.total); got != tt.want {
			t.Errorf("Clamp(%d, %d) = %d, want %d", tt.page, tt.total, got, tt.want)
		}
	}
}

func TestNavigation(t *testing.T) {
	p := Paginate(seq(10), 2, 4)
	if !p.HasPrev() || !p.HasNext() {
		t.Errorf("middle page: HasPrev=%v HasNext=%v, want both true", p.HasPrev(), p.HasNext())
	}
	empty := Paginate([]int{}, 1, 4)
	if empty.HasPrev() || empty.HasNext() {
		t.Error("empty result should offer no navigation")
	}
}
