package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func valid(openTime int64, price float64) Candle {
	return Candle{
		OpenTime:  openTime,
		CloseTime: openTime + 59_999,
		Open:      price,
		High:      price + 1,
		Low:       price - 1,
		Close:     price,
		Volume:    5,
	}
}

func TestValidateSeries(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		assert.NoError(t, ValidateSeries([]Candle{valid(0, 100), valid(60_000, 101)}))
	})

	t.Run("empty", func(t *testing.T) {
		assert.Error(t, ValidateSeries(nil))
	})

	t.Run("out of order", func(t *testing.T) {
		assert.Error(t, ValidateSeries([]Candle{valid(60_000, 100), valid(0, 101)}))
	})

	t.Run("duplicate open time", func(t *testing.T) {
		assert.Error(t, ValidateSeries([]Candle{valid(0, 100), valid(0, 101)}))
	})

	t.Run("non-positive price", func(t *testing.T) {
		c := valid(0, 100)
		c.Close = 0
		assert.Error(t, ValidateSeries([]Candle{c}))
	})

	t.Run("high below close", func(t *testing.T) {
		c := valid(0, 100)
		c.High = 99
		assert.Error(t, ValidateSeries([]Candle{c}))
	})

	t.Run("negative volume", func(t *testing.T) {
		c := valid(0, 100)
		c.Volume = -1
		assert.Error(t, ValidateSeries([]Candle{c}))
	})
}

func TestSortAndDedup(t *testing.T) {
	assert.Nil(t, SortAndDedup(nil))

	a := valid(60_000, 101)
	b := valid(0, 100)
	dup := valid(60_000, 999)

	out := SortAndDedup([]Candle{a, b, dup})
	require.Len(t, out, 2)
	assert.Equal(t, int64(0), out[0].OpenTime)
	assert.Equal(t, int64(60_000), out[1].OpenTime)
	assert.Equal(t, 999.0, out[1].Close, "last write wins on duplicates")
}

func TestColumnExtraction(t *testing.T) {
	series := []Candle{valid(0, 100), valid(60_000, 102)}
	assert.Equal(t, []float64{100, 102}, Closes(series))
	assert.Equal(t, []float64{101, 103}, Highs(series))
	assert.Equal(t, []float64{99, 101}, Lows(series))
}
