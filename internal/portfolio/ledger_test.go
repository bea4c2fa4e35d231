package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/papertrade/internal/models"
)

func TestLedger_AddBlendsAverage(t *testing.T) {
	now := time.Now()
	l := NewLedger(nil)
	assert.Empty(t, l.Positions())
	assert.True(t, l.Held("ABC").IsZero())

	l.Add("ABC", "ABC Corp", models.MarketUS, d("10"), d("100"), now)
	pos := l.Add("ABC", "ABC Corp", models.MarketUS, d("30"), d("200"), now)

	assert.True(t, pos.Quantity.Equal(d("40")))
	assert.True(t, pos.AveragePrice.Equal(d("175")), "avg %s", pos.AveragePrice)
	assert.Len(t, l.Positions(), 1)
}

func TestLedger_KeepsInsertionOrder(t *testing.T) {
	now := time.Now()
	l := NewLedger(nil)
	l.Add("B", "b", models.MarketUS, d("1"), d("1"), now)
	l.Add("A", "a", models.MarketIndian, d("1"), d("1"), now)
	l.Add("B", "b", models.MarketUS, d("1"), d("3"), now)

	require.Len(t, l.Positions(), 2)
	assert.Equal(t, "B", l.Positions()[0].Symbol)
	assert.Equal(t, "A", l.Positions()[1].Symbol)
}

func TestLedger_RemovePrunesZero(t *testing.T) {
	now := time.Now()
	l := NewLedger(nil)
	l.Add("A", "a", models.MarketUS, d("5"), d("10"), now)
	l.Add("B", "b", models.MarketUS, d("5"), d("20"), now)

	avg := l.Remove("A", d("2"), now)
	assert.True(t, avg.Equal(d("10")))
	assert.True(t, l.Held("A").Equal(d("3")))

	l.Remove("A", d("3"), now)
	assert.True(t, l.Held("A").IsZero())
	require.Len(t, l.Positions(), 1)
	assert.Equal(t, "B", l.Positions()[0].Symbol)

	// unknown symbol is a no-op
	assert.True(t, l.Remove("ZZZ", d("1"), now).IsZero())
	assert.Len(t, l.Positions(), 1)
}
