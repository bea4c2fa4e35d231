package app

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUseNumericJSON(t *testing.T) {
	prev := decimal.MarshalJSONWithoutQuotes
	t.Cleanup(func() { decimal.MarshalJSONWithoutQuotes = prev })

	decimal.MarshalJSONWithoutQuotes = false
	data, err := json.Marshal(map[string]decimal.Decimal{"balance": decimal.RequireFromString("100.56")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"balance":"100.56"}`, string(data))

	UseNumericJSON()
	data, err = json.Marshal(map[string]decimal.Decimal{"balance": decimal.RequireFromString("100.56")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"balance":100.56}`, string(data))
}
