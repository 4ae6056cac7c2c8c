package qpack

import (
	"testing"

	"github.com/stvp/assert"
)

func TestStaticTableSize(t *testing.T) {
	assert.Equal(t, staticTableSize, 99)
}

func TestStaticTableLookup(t *testing.T) {
	idx := lookupStaticNameValue([]byte(":method"), []byte("GET"))
	assert.True(t, idx >= 0)
	name, value, ok := staticEntryAt(idx)
	assert.True(t, ok)
	assert.Equal(t, name, ":method")
	assert.Equal(t, value, "GET")
}

func TestStaticTableNameOnlyLookup(t *testing.T) {
	idx := lookupStaticName([]byte(":authority"))
	assert.Equal(t, idx, 0)
}

func TestStaticTableMiss(t *testing.T) {
	assert.Equal(t, lookupStaticNameValue([]byte("x-not-a-real-header"), []byte("v")), -1)
	assert.Equal(t, lookupStaticName([]byte("x-not-a-real-header")), -1)
}
