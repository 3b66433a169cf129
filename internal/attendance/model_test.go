package attendance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Page
		want Page
	}{
		{name: "defaults", in: Page{}, want: Page{Page: 1, Limit: 10}},
		{name: "negative", in: Page{Page: -4, Limit: -1}, want: Page{Page: 1, Limit: 10}},
		{name: "limit capped", in: Page{Page: 3, Limit: 500}, want: Page{Page: 3, Limit: 100}},
		{name: "huge page", in: Page{Page: math.MaxInt, Limit: 100}, want: Page{Page: maxPage, Limit: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.normalize()
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got.Offset(), 0)
		})
	}
}
