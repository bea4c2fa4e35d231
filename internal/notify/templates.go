package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const (
	KindOTP               = "otp"
	KindWelcome           = "welcome"
	KindPasswordReset     = "password_reset"
	KindOrderConfirmation = "order_confirmation"
)

var subjects = map[string]string{
	KindOTP:               "Your verification code",
	KindWelcome:           "Welcome to PaperTrade",
	KindPasswordReset:     "Your password reset code",
	KindOrderConfirmation: "Order confirmation",
}

// Bodies are markdown. The plain text part is the markdown source and the
// HTML part is rendered from it.
var bodies = template.Must(template.New("").Parse(`
{{define "otp"}}Hi {{.Name}},

Your verification code is **{{.Code}}**.

It expires in {{.Minutes}} minutes. If you did not sign up, ignore this email.
{{end}}

{{define "welcome"}}Hi {{.Name}},

Your email is verified and your paper trading account is ready.
You start with a virtual balance of **{{.Balance}}**.
{{end}}

{{define "password_reset"}}Hi {{.Name}},

Your password reset code is **{{.Code}}**.

It expires in {{.Minutes}} minutes. If you did not ask for a reset, ignore this email.
{{end}}

{{define "order_confirmation"}}Hi {{.Name}},

Your **{{.Side}}** order for {{.StockName}} ({{.Symbol}}) was filled.

| Detail | Value |
|---|---|
| Order | #{{.OrderID}} |
| Market | {{.Market}} |
| Type | {{.OrderType}} |
| Quantity | {{.Quantity}} |
| Price | {{.Price}} |
| Total | {{.Total}} |
| Executed | {{.ExecutedAt}} |

{{if .IsBuy}}{{.Total}} has been deducted from your balance.{{else}}{{.Total}} has been credited to your balance.{{end}}
{{end}}
`))

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// render executes the template for kind and converts it to an Email
func render(kind, to string, data interface{}) (Email, error) {
	var text bytes.Buffer
	if err := bodies.ExecuteTemplate(&text, kind, data); err != nil {
		return Email{}, fmt.Errorf("failed to render %s: %w", kind, err)
	}
	var html bytes.Buffer
	if err := markdown.Convert(text.Bytes(), &html); err != nil {
		return Email{}, fmt.Errorf("failed to convert %s to html: %w", kind, err)
	}
	return Email{
		To:      to,
		Subject: subjects[kind],
		Text:    strings.TrimSpace(text.String()),
		HTML:    html.String(),
	}, nil
}

// FormatMoney displays amount in the currency's conventional format.
// Unknown currency codes fall back to a fixed two-decimal amount.
func FormatMoney(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2) + " " + currency
	}
	factor := decimal.New(1, int32(cur.Fraction))
	return money.New(amount.Mul(factor).Round(0).IntPart(), cur.Code).Display()
}

// ShortOrderID is the customer-facing order reference
func ShortOrderID(id string) string {
	if len(id) > 8 {
		id = id[len(id)-8:]
	}
	return strings.ToUpper(id)
}
