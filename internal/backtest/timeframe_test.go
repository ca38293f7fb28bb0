package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe(" 1H ")
	require.NoError(t, err)
	assert.Equal(t, "1h", tf.Key)
	assert.Equal(t, time.Hour, tf.Duration)

	_, err = ParseTimeframe("3m")
	assert.Error(t, err)
}

func TestSupportedTimeframes(t *testing.T) {
	keys := SupportedTimeframes()
	assert.Contains(t, keys, "1h")
	assert.Contains(t, keys, "1d")
	assert.IsIncreasing(t, keys)
}

func TestTimeframe_AlignRange(t *testing.T) {
	tf, _ := ParseTimeframe("1h")

	start, end := tf.AlignRange(3_700_000, 7_300_000)
	assert.Equal(t, int64(3_600_000), start)
	assert.Equal(t, int64(7_200_000), end)

	// reversed input is swapped
	start, end = tf.AlignRange(7_300_000, 3_700_000)
	assert.Equal(t, int64(3_600_000), start)
	assert.Equal(t, int64(7_200_000), end)
}

func TestTimeframe_ExpectedCandles(t *testing.T) {
	tf, _ := ParseTimeframe("1h")
	assert.Equal(t, int64(1), tf.ExpectedCandles(0, 0))
	assert.Equal(t, int64(3), tf.ExpectedCandles(0, 7_200_000))
	assert.Zero(t, tf.ExpectedCandles(100, 0))
}
