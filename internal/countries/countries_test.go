package countries

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := Default()
	codes := r.Codes()
	require.Len(t, codes, 16)
	assert.Equal(t, "JP", codes[0])

	jp, err := r.Lookup("jp")
	require.NoError(t, err)
	assert.Equal(t, "JPN", jp.ISO3)
	assert.NotEmpty(t, jp.Rules)

	lvl, ok := jp.OverpassLevel(2)
	assert.True(t, ok)
	assert.Equal(t, 7, lvl)
	_, ok = jp.OverpassLevel(3)
	assert.False(t, ok)
}

func TestResolve(t *testing.T) {
	r := Default()

	codes, err := r.Resolve([]string{"kr", "JP", "kr", " "}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"KR", "JP"}, codes)

	codes, err = r.Resolve(nil, true)
	require.NoError(t, err)
	assert.Len(t, codes, 16)

	_, err = r.Resolve([]string{"JP", "ZZ", "XX"}, false)
	assert.ErrorIs(t, err, ErrUnknownCountry)
	assert.Contains(t, err.Error(), "XX, ZZ")
}

func TestLoadRejectsBadEntries(t *testing.T) {
	_, err := Load([]byte("countries:\n  - code: JPN\n    iso3: JPN\n"))
	assert.Error(t, err)

	_, err = Load([]byte("countries:\n  - code: JP\n    iso3: JPN\n  - code: jp\n    iso3: JPN\n"))
	assert.Error(t, err)
}
