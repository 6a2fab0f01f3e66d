// Package display renders committed gift messages for every read surface.
package display

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/gate4ai/giftmessage/shared/commerce"
	"go.uber.org/zap"
)

// Surface selects the output encoding
type Surface int

const (
	SurfaceHTML Surface = iota
	SurfacePlain
)

func (s Surface) String() string {
	switch s {
	case SurfaceHTML:
		return "web-html"
	case SurfacePlain:
		return "plain-text"
	default:
		return "unknown"
	}
}

// Context describes where the message is shown. It only selects CSS hooks
// and never changes the content.
type Context string

const (
	ContextCart         Context = "cart"
	ContextOrderDetails Context = "order-details"
	ContextEmail        Context = "email"
	ContextAdmin        Context = "admin"
)

// FormatFunc post-processes the rendered HTML of a message. text is the
// stored normalized message. Returning an error falls back to the plain
// escaped message.
type FormatFunc func(rendered, text string, ctx Context) (string, error)

// Entry is one annotated order line in an order summary
type Entry struct {
	LineLabel string `json:"line_label"`
	Quantity  int    `json:"quantity"`
	Text      string `json:"text"`
}

// Adapter reads gift messages from order lines
type Adapter struct {
	metaKey string
	format  FormatFunc
	logger  *zap.Logger
}

// Option configures an Adapter
type Option func(*Adapter)

// WithFormatter installs the final HTML formatting hook.
func WithFormatter(fn FormatFunc) Option {
	return func(a *Adapter) {
		a.format = fn
	}
}

// WithLogger sets the logger used to report formatter failures.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger.Named("display")
	}
}

// New creates an adapter reading the attribute metaKey
func New(metaKey string, options ...Option) *Adapter {
	a := &Adapter{metaKey: metaKey, logger: zap.NewNop()}
	for _, option := range options {
		option(a)
	}
	return a
}

// Text returns the stored message of a line, "" when there is none.
func (a *Adapter) Text(line *commerce.OrderLine) string {
	return line.MetaValue(a.metaKey)
}

// Present renders the gift message of line for surface. Lines without a
// message render as "".
func (a *Adapter) Present(line *commerce.OrderLine, surface Surface, ctx Context) string {
	return a.PresentText(a.Text(line), surface, ctx)
}

// PresentText renders an already known message, e.g. one still held in a cart.
func (a *Adapter) PresentText(text string, surface Surface, ctx Context) string {
	if text == "" {
		return ""
	}
	if surface == SurfacePlain {
		return text
	}
	return a.formatHTML(text, ctx)
}

var cssUnsafe = regexp.MustCompile(`[^a-z0-9-]+`)

func cssClass(ctx Context) string {
	suffix := cssUnsafe.ReplaceAllString(strings.ToLower(string(ctx)), "-")
	if suffix == "" {
		return "gift-message"
	}
	return "gift-message gift-message--" + suffix
}

// nl2br escapes text and turns line breaks into <br /> tags
func nl2br(text string) string {
	escaped := html.EscapeString(strings.ReplaceAll(text, "\r\n", "\n"))
	return strings.ReplaceAll(escaped, "\n", "<br />\n")
}

func (a *Adapter) formatHTML(text string, ctx Context) (out string) {
	fallback := html.EscapeString(text)
	rendered := fmt.Sprintf(`<span class="%s">%s</span>`, cssClass(ctx), nl2br(text))
	if a.format == nil {
		return rendered
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Gift message formatter panicked, showing plain message", zap.Any("panic", r))
			out = fallback
		}
	}()
	formatted, err := a.format(rendered, text, ctx)
	if err != nil {
		a.logger.Warn("Gift message formatter failed, showing plain message", zap.Error(err))
		return fallback
	}
	return formatted
}

// CollectForOrder lists annotated lines of o in their original order. Lines
// without a message are skipped; nothing is reordered or deduplicated.
func (a *Adapter) CollectForOrder(o *commerce.Order) []Entry {
	if o == nil {
		return nil
	}
	var entries []Entry
	for _, line := range o.Lines {
		text := a.Text(line)
		if text == "" {
			continue
		}
		entries = append(entries, Entry{
			LineLabel: line.Label,
			Quantity:  line.Quantity,
			Text:      text,
		})
	}
	return entries
}

// HasAny reports whether any line of o carries a gift message
func (a *Adapter) HasAny(o *commerce.Order) bool {
	if o == nil {
		return false
	}
	for _, line := range o.Lines {
		if a.Text(line) != "" {
			return true
		}
	}
	return false
}
