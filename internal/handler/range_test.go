package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		fileSize int64
		want     [][2]int64
		wantErr  bool
	}{
		{
			name:     "first hundred bytes",
			header:   "bytes=0-99",
			fileSize: 1000,
			want:     [][2]int64{{0, 99}},
		},
		{
			name:     "middle span",
			header:   "bytes=200-499",
			fileSize: 1000,
			want:     [][2]int64{{200, 499}},
		},
		{
			name:     "open ended",
			header:   "bytes=500-",
			fileSize: 1000,
			want:     [][2]int64{{500, 999}},
		},
		{
			name:     "suffix",
			header:   "bytes=-100",
			fileSize: 1000,
			want:     [][2]int64{{900, 999}},
		},
		{
			name:     "single byte",
			header:   "bytes=999-999",
			fileSize: 1000,
			want:     [][2]int64{{999, 999}},
		},
		{
			name:     "missing prefix",
			header:   "0-99",
			fileSize: 1000,
			wantErr:  true,
		},
		{
			name:     "end beyond size",
			header:   "bytes=0-1000",
			fileSize: 1000,
			wantErr:  true,
		},
		{
			name:     "inverted",
			header:   "bytes=500-100",
			fileSize: 1000,
			wantErr:  true,
		},
		{
			name:     "not numbers",
			header:   "bytes=abc-def",
			fileSize: 1000,
			wantErr:  true,
		},
		{
			name:     "multiple spans",
			header:   "bytes=0-99,200-299",
			fileSize: 1000,
			want:     [][2]int64{{0, 99}, {200, 299}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRange(tt.header, tt.fileSize)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
