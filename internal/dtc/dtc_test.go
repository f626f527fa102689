package dtc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		b1, b2 byte
		want   string
		ok     bool
	}{
		{0x01, 0x33, "P0133", true},
		{0x03, 0x01, "P0301", true},
		{0x50, 0x23, "C1023", true},
		{0x81, 0x23, "B0123", true},
		{0xC1, 0x00, "U0100", true},
		{0x00, 0xAF, "P00AF", true},
		{0x00, 0x00, "", false},
		{0x40, 0x00, "", false},
		{0xCC, 0x00, "", false},
	}
	for _, tc := range cases {
		got, ok := Decode(tc.b1, tc.b2)
		assert.Equal(t, tc.ok, ok, "decode %02X %02X", tc.b1, tc.b2)
		assert.Equal(t, tc.want, got, "decode %02X %02X", tc.b1, tc.b2)
	}
}

func TestStoreInsertDeduplicates(t *testing.T) {
	var s Store
	require.NoError(t, s.Initialize(3))

	require.NoError(t, s.InsertPair(0x03, 0x01))
	require.NoError(t, s.InsertPair(0x03, 0x01))
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.InsertPair(0x00, 0x00))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, []string{"P0301"}, s.Codes())
}

func TestStoreOverflowIsReported(t *testing.T) {
	var s Store
	require.NoError(t, s.Initialize(1))
	require.NoError(t, s.Insert("P0301"))
	err := s.Insert("P0302")
	require.ErrorIs(t, err, ErrStoreFull)
	assert.Equal(t, 1, s.Len())

	// duplicates of a stored code are still accepted once full
	require.NoError(t, s.Insert("P0301"))
}

func TestStoreLifecycle(t *testing.T) {
	var s Store
	assert.False(t, s.Active())
	require.ErrorIs(t, s.Initialize(-1), ErrNegativeCapacity)

	require.NoError(t, s.Initialize(2))
	require.ErrorIs(t, s.Initialize(2), ErrStoreActive)
	require.NoError(t, s.Insert("P0420"))

	s.Destroy()
	assert.False(t, s.Active())
	assert.Equal(t, 0, s.Capacity())
	assert.Equal(t, 0, s.Len())
	_, ok := s.Selected()
	assert.False(t, ok)

	require.NoError(t, s.Initialize(4))
	assert.Equal(t, 4, s.Capacity())
}

func TestCursorFullCycle(t *testing.T) {
	var s Store
	require.NoError(t, s.Initialize(3))
	require.NoError(t, s.Insert("P0301"))
	require.NoError(t, s.Insert("P0302"))

	_, ok := s.Current()
	require.False(t, ok)

	s.Next()
	code, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "P0301", code)

	s.Next()
	s.Next()
	code, ok = s.Current()
	require.True(t, ok)
	assert.Equal(t, "", code, "third slot is reserved but not filled")

	s.Next()
	_, ok = s.Selected()
	assert.False(t, ok, "capacity+1 steps return to the summary")
}

func TestCursorPrevWraps(t *testing.T) {
	var s Store
	require.NoError(t, s.Initialize(2))

	s.Prev()
	i, ok := s.Selected()
	require.True(t, ok)
	assert.Equal(t, 1, i)

	s.Prev()
	s.Prev()
	_, ok = s.Selected()
	assert.False(t, ok)
}

func TestCursorNoopWithoutSlots(t *testing.T) {
	var s Store
	s.Next()
	s.Prev()
	_, ok := s.Selected()
	assert.False(t, ok)

	require.NoError(t, s.Initialize(0))
	s.Next()
	_, ok = s.Selected()
	assert.False(t, ok)
}
