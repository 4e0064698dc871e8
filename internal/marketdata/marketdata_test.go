package marketdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStooqCSV(t *testing.T) {
	body := "Symbol,Date,Time,Open,High,Low,Close,Volume\n" +
		"^SPX,2026-03-10,16:00:00,5210.5,5250.1,5150.2,5180.7,0\n"
	q, err := parseStooqCSV(body)
	require.NoError(t, err)
	assert.InDelta(t, 5210.5, q.open, 1e-9)
	assert.InDelta(t, 5180.7, q.close, 1e-9)
}

func TestParseStooqCSVNoData(t *testing.T) {
	// Stooq returns N/D fields for unknown symbols.
	body := "Symbol,Date,Time,Open,High,Low,Close,Volume\n" +
		"BOGUS.US,N/D,N/D,N/D,N/D,N/D,N/D,N/D\n"
	_, err := parseStooqCSV(body)
	assert.Error(t, err)
}

func TestParseStooqCSVMissingOpen(t *testing.T) {
	body := "Symbol,Date,Time,Open,High,Low,Close,Volume\n" +
		"10USY.B,2026-03-10,16:00:00,N/D,N/D,N/D,4.82,0\n"
	q, err := parseStooqCSV(body)
	require.NoError(t, err)
	assert.Zero(t, q.open)
	assert.InDelta(t, 4.82, q.close, 1e-9)
}

func TestParseStooqCSVGarbage(t *testing.T) {
	_, err := parseStooqCSV("<html>not csv</html>")
	assert.Error(t, err)
}
