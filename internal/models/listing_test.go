package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListing_HasUsableImages(t *testing.T) {
	tests := []struct {
		name     string
		images   []string
		expected bool
	}{
		{name: "empty", images: nil, expected: false},
		{name: "all N/A", images: []string{NA, NA}, expected: false},
		{name: "one usable", images: []string{NA, "https://img/a.jpg"}, expected: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := Listing{Images: tt.images}
			assert.Equal(t, tt.expected, l.HasUsableImages())
		})
	}
}

func TestListing_RecountImages(t *testing.T) {
	l := Listing{Images: []string{NA, "https://img/a.jpg", "https://img/b.jpg"}}
	l.RecountImages()
	assert.Equal(t, 2, l.NbrImages)
}

func TestListing_HasAgency(t *testing.T) {
	assert.False(t, (&Listing{}).HasAgency())
	assert.True(t, (&Listing{IDAgence: "abc"}).HasAgency())
}
