package jp2view

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePaletteBox(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want *JP2Palette
	}{
		{
			name: "8-bit rgb",
			data: []byte{0, 2, 3, 7, 7, 7, 1, 2, 3, 4, 5, 6},
			want: &JP2Palette{
				NumEntries: 2, NumColumns: 3,
				BitDepths: []int{8, 8, 8},
				Signed:    []bool{false, false, false},
				Entries:   [][]int32{{1, 2, 3}, {4, 5, 6}},
			},
		},
		{
			name: "mixed widths and sign",
			data: []byte{0, 1, 2, 0x80 | 3, 11, 0x0F, 0x01, 0x02},
			want: &JP2Palette{
				NumEntries: 1, NumColumns: 2,
				BitDepths: []int{4, 12},
				Signed:    []bool{true, false},
				Entries:   [][]int32{{-1, 0x0102}},
			},
		},
		{"no entries", []byte{0, 0, 1, 7}, nil},
		{"no columns", []byte{0, 1, 0}, nil},
		{"too many entries", append([]byte{0x04, 0x01, 1, 7}, make([]byte, 1025)...), nil},
		{"truncated depths", []byte{0, 1, 3, 7}, nil},
		{"truncated entries", []byte{0, 2, 1, 7, 9}, nil},
		{"depth over 32", []byte{0, 1, 1, 40, 0, 0, 0, 0, 0, 0}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var meta JP2Metadata
			parsePaletteBox(tt.data, &meta)
			assert.Equal(t, tt.want, meta.Palette)
		})
	}
}

func TestPaletteApplied(t *testing.T) {
	pal := &JP2Palette{NumEntries: 2, NumColumns: 1, BitDepths: []int{8}, Signed: []bool{false}, Entries: [][]int32{{10}, {20}}}
	cmap := []JP2ComponentMapping{{Component: 0, MappingType: 1, PaletteCol: 0}}

	tests := []struct {
		name string
		meta *JP2Metadata
		want bool
	}{
		{"no jp2", nil, false},
		{"no palette", &JP2Metadata{ComponentMap: cmap}, false},
		{"palette without cmap", &JP2Metadata{Palette: pal}, false},
		{"palette and cmap", &JP2Metadata{Palette: pal, ComponentMap: cmap}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.meta.PaletteApplied())
		})
	}

	assert.Equal(t, int32(10), pal.Lookup(-3, 0))
	assert.Equal(t, int32(20), pal.Lookup(1, 0))
	assert.Equal(t, int32(20), pal.Lookup(200, 0))
}
