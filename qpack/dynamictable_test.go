package qpack

import (
	"testing"

	"github.com/stvp/assert"
)

func TestDynamicTableInsertAndGet(t *testing.T) {
	tbl := NewDynamicTable(4096)
	id, err := tbl.Insert("custom-key", "custom-value")
	assert.Nil(t, err)
	name, value, ok := tbl.Get(id)
	assert.True(t, ok)
	assert.Equal(t, name, "custom-key")
	assert.Equal(t, value, "custom-value")
}

func TestDynamicTableEvictsOldestUnreferenced(t *testing.T) {
	entrySize := len("k") + len("v") + entryOverhead
	tbl := NewDynamicTable(entrySize * 2)

	id0, err := tbl.Insert("k", "v")
	assert.Nil(t, err)
	_, err = tbl.Insert("k", "v")
	assert.Nil(t, err)
	// A third insert must evict id0 since capacity only holds two entries.
	_, err = tbl.Insert("k", "v")
	assert.Nil(t, err)

	_, _, ok := tbl.Get(id0)
	assert.False(t, ok)
}

func TestDynamicTableRefcountBlocksEviction(t *testing.T) {
	entrySize := len("k") + len("v") + entryOverhead
	tbl := NewDynamicTable(entrySize * 2)

	id0, _ := tbl.Insert("k", "v")
	tbl.Ref(id0)
	tbl.Insert("k", "v")
	_, err := tbl.Insert("k", "v")
	assert.NotNil(t, err) // can't evict id0 (referenced), so no room

	tbl.Unref(id0)
}

func TestDynamicTableCapacityConservation(t *testing.T) {
	tbl := NewDynamicTable(1024)
	for i := 0; i < 10; i++ {
		_, err := tbl.Insert("name", "value")
		assert.Nil(t, err)
	}
	assert.True(t, tbl.Used() <= tbl.Capacity())
}

func TestDynamicTableDuplicate(t *testing.T) {
	tbl := NewDynamicTable(4096)
	id0, _ := tbl.Insert("k", "v")
	id1, err := tbl.Duplicate(id0)
	assert.Nil(t, err)
	name, value, ok := tbl.Get(id1)
	assert.True(t, ok)
	assert.Equal(t, name, "k")
	assert.Equal(t, value, "v")
}
