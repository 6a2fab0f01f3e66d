// Package presenter decides where the gift message field is shown and renders it.
package presenter

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/gate4ai/giftmessage/server/validator"
	"github.com/gate4ai/giftmessage/shared/commerce"
)

//go:embed assets/*
var assetFS embed.FS

// Asset URLs served by AssetHandler
const (
	AssetPrefix = "/assets/"
	ScriptURL   = AssetPrefix + "gift-message.js"
	StyleURL    = AssetPrefix + "gift-message.css"
)

// FieldName is the form field carrying the gift message
const FieldName = "gift_message"

// RouteKind classifies the page being rendered for asset selection
type RouteKind int

const (
	RouteProduct RouteKind = iota
	RouteCart
	RouteCheckout
	RouteOrder
	RouteAdmin
)

// EligibilityFunc decides whether the field is shown for a product.
// defaultEligible carries the built-in decision so overrides can refine it.
type EligibilityFunc func(product commerce.Product, defaultEligible bool) bool

// Option configures a Presenter
type Option func(*Presenter)

// WithEligibility replaces the eligibility decision.
func WithEligibility(fn EligibilityFunc) Option {
	return func(p *Presenter) {
		p.eligibility = fn
	}
}

// WithExcludedKinds sets the product kinds never offered a gift message.
func WithExcludedKinds(kinds ...commerce.ProductKind) Option {
	return func(p *Presenter) {
		p.excluded = make(map[commerce.ProductKind]bool, len(kinds))
		for _, k := range kinds {
			p.excluded[k] = true
		}
	}
}

// Presenter renders the gift message input field
type Presenter struct {
	maxLength   int
	excluded    map[commerce.ProductKind]bool
	eligibility EligibilityFunc
	tmpl        *template.Template
}

// No maxlength attribute: browsers count it in UTF-16 units, the limit is in
// code points and is enforced by the script and the validator.
var fieldTemplate = template.Must(template.New("field").Parse(`<div class="gift-message-field" data-gift-message-field data-max-length="{{.MaxLength}}">
  <label for="{{.ID}}">Gift message <span class="optional">(optional)</span></label>
  <textarea id="{{.ID}}" name="{{.Name}}" rows="3" placeholder="Add a personal message to your gift">{{.Value}}</textarea>
  <small class="gift-message__hint"><span data-gift-message-counter id="{{.ID}}-counter">{{.Remaining}}</span> characters remaining</small>
  <p class="gift-message__error" data-gift-message-error hidden></p>
</div>`))

type fieldData struct {
	ID        string
	Name      string
	Value     string
	MaxLength int
	Remaining int
}

// New creates a presenter. maxLength <= 0 selects the validator default.
func New(maxLength int, options ...Option) *Presenter {
	if maxLength <= 0 {
		maxLength = validator.DefaultMaxLength
	}
	p := &Presenter{
		maxLength: maxLength,
		tmpl:      fieldTemplate,
	}
	WithExcludedKinds(commerce.KindVirtual, commerce.KindDownloadable)(p)
	for _, option := range options {
		option(p)
	}
	return p
}

// ShouldPresent reports whether the gift message field is offered for product.
func (p *Presenter) ShouldPresent(product commerce.Product) bool {
	eligible := !product.Intangible() && !p.excluded[product.Kind]
	if p.eligibility != nil {
		return p.eligibility(product, eligible)
	}
	return eligible
}

// Render returns the field markup carrying currentValue. It performs no persistence.
func (p *Presenter) Render(product commerce.Product, currentValue string) (template.HTML, error) {
	data := fieldData{
		ID:        fmt.Sprintf("gift-message-%d", product.ID),
		Name:      FieldName,
		Value:     currentValue,
		MaxLength: p.maxLength,
		Remaining: p.maxLength - len([]rune(currentValue)),
	}
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render gift message field: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// Assets returns the asset URLs a page of the given kind must include.
// Only pages carrying the field or editing it in the cart need them.
func (p *Presenter) Assets(route RouteKind) []string {
	switch route {
	case RouteProduct, RouteCart:
		return []string{StyleURL, ScriptURL}
	case RouteOrder:
		return []string{StyleURL}
	default:
		return nil
	}
}

// AssetHandler serves the embedded script and stylesheet under AssetPrefix.
func AssetHandler() http.Handler {
	sub, err := fs.Sub(assetFS, "assets")
	if err != nil {
		panic(err) // embedded directory is always present
	}
	return http.StripPrefix(AssetPrefix, http.FileServer(http.FS(sub)))
}
