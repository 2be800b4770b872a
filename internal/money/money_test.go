package money

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromValue(t *testing.T) {
	for _, v := range []any{700, int32(700), int64(700), 700.0, float32(700), json.Number("700"), decimal.NewFromInt(700)} {
		d, err := FromValue(v)
		require.NoError(t, err, "%T", v)
		assert.True(t, d.Equal(decimal.NewFromInt(700)), "%T -> %s", v, d)
	}
	for _, v := range []any{"700", nil, true, map[string]any{}} {
		_, err := FromValue(v)
		assert.Error(t, err, "%T", v)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDate("2024-03-15T10:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("15/03/2024")
	assert.Error(t, err)
}

func TestTimeValue(t *testing.T) {
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	for _, v := range []any{want, "2024-03-15", "2024-03-15T00:00:00Z", "2024-03-15T00:00:00.000Z"} {
		got, ok := TimeValue(v)
		assert.True(t, ok, "%v", v)
		assert.Equal(t, want, got)
	}
	_, ok := TimeValue(12)
	assert.False(t, ok)
}
