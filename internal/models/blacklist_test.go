package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBlacklist_IncludesDefaultsAndExtras(t *testing.T) {
	b := NewBlacklist("111", "222")

	assert.True(t, b.Contains("5608823"))
	assert.True(t, b.Contains("111"))
	assert.True(t, b.Contains("222"))
	assert.False(t, b.Contains("999"))
}

func TestBlacklist_Contains_EmptyStoreID(t *testing.T) {
	b := NewBlacklist()
	assert.False(t, b.Contains(""))
}
