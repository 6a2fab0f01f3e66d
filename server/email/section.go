// Package email renders the gift message summary section of order emails.
package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/gate4ai/giftmessage/server/display"
	"github.com/gate4ai/giftmessage/shared/commerce"
)

// Well known email categories
const (
	CustomerProcessingOrder = "customer_processing_order"
	CustomerCompletedOrder  = "customer_completed_order"
	CustomerInvoice         = "customer_invoice"
	NewOrder                = "new_order" // admin facing
)

var htmlSection = htmltemplate.Must(htmltemplate.New("section").Parse(`<div class="gift-message-summary" style="margin-bottom: 40px;">
<h2>Gift Messages</h2>
<table cellspacing="0" cellpadding="6" border="1" style="width: 100%; border-collapse: collapse;">
<thead><tr><th scope="col">Product</th><th scope="col">Quantity</th><th scope="col">Gift Message</th></tr></thead>
<tbody>
{{- range .}}
<tr><td>{{.Label}}</td><td>{{.Quantity}}</td><td>{{.Message}}</td></tr>
{{- end}}
</tbody>
</table>
</div>
`))

var textSection = texttemplate.Must(texttemplate.New("section").Parse(`==========
GIFT MESSAGES
==========
{{range .}}
{{.Label}} x {{.Quantity}}
{{.Message}}
{{end}}`))

type row struct {
	Label    string
	Quantity int
	Message  interface{}
}

// Section renders the summary for eligible email categories
type Section struct {
	adapter    *display.Adapter
	categories map[string]bool
}

// New creates a section rendered only for the given categories
func New(adapter *display.Adapter, categories []string) *Section {
	s := &Section{
		adapter:    adapter,
		categories: make(map[string]bool, len(categories)),
	}
	for _, c := range categories {
		s.categories[strings.ToLower(strings.TrimSpace(c))] = true
	}
	return s
}

// Eligible reports whether emails of category carry the section
func (s *Section) Eligible(category string) bool {
	return s.categories[strings.ToLower(category)]
}

// Render returns the section for o. ok is false when the category is not
// eligible or the order has no gift messages; the caller then omits the section.
func (s *Section) Render(o *commerce.Order, category string, plain bool) (out string, ok bool, err error) {
	if !s.Eligible(category) {
		return "", false, nil
	}
	entries := s.adapter.CollectForOrder(o)
	if len(entries) == 0 {
		return "", false, nil
	}

	rows := make([]row, 0, len(entries))
	for _, e := range entries {
		r := row{Label: e.LineLabel, Quantity: e.Quantity}
		if plain {
			r.Message = s.adapter.PresentText(e.Text, display.SurfacePlain, display.ContextEmail)
		} else {
			r.Message = htmltemplate.HTML(s.adapter.PresentText(e.Text, display.SurfaceHTML, display.ContextEmail))
		}
		rows = append(rows, r)
	}

	var buf bytes.Buffer
	if plain {
		err = textSection.Execute(&buf, rows)
	} else {
		err = htmlSection.Execute(&buf, rows)
	}
	if err != nil {
		return "", false, fmt.Errorf("render gift message email section: %w", err)
	}
	return buf.String(), true, nil
}
