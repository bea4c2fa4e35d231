package app

import "github.com/shopspring/decimal"

// UseNumericJSON makes decimals encode as JSON numbers, both on the API and
// in stored position documents. Binaries call it once before serving.
func UseNumericJSON() {
	decimal.MarshalJSONWithoutQuotes = true
}
