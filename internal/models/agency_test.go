package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAgency_CompletenessScore(t *testing.T) {
	tests := []struct {
		name     string
		agency   Agency
		expected int
	}{
		{
			name:     "all fields absent",
			agency:   Agency{},
			expected: 0,
		},
		{
			name:     "sentinel values do not count",
			agency:   Agency{Number: SentinelNotFound, Adresse: SentinelNotFound},
			expected: 0,
		},
		{
			name:     "mixed present and sentinel",
			agency:   Agency{Number: "+33", Adresse: SentinelNotFound, SiteWeb: "https://a.example"},
			expected: 2,
		},
		{
			name: "fully populated",
			agency: Agency{
				CodeSiren: "1", Logo: "2", Adresse: "3", ZoneIntervention: "4",
				SiteWeb: "5", Horaires: "6", Number: "7", Description: "8",
			},
			expected: 8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.agency.CompletenessScore())
		})
	}
}

func TestAgency_MoreCompleteThan(t *testing.T) {
	less := &Agency{Adresse: "X"}
	more := &Agency{Adresse: "X", Number: "+33"}

	assert.True(t, more.MoreCompleteThan(less))
	assert.False(t, less.MoreCompleteThan(more))
	assert.False(t, less.MoreCompleteThan(less))
}

func TestAgencyLink(t *testing.T) {
	got := AgencyLink("https://www.example.fr", "12345")
	assert.Equal(t, "https://www.example.fr/boutique/12345", got)
}
