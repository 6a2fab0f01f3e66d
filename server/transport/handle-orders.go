package transport

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"html/template"
	"net/http"
	"strconv"

	"github.com/gate4ai/giftmessage/server/display"
	"github.com/gate4ai/giftmessage/server/email"
	"github.com/gate4ai/giftmessage/server/order"
	"github.com/gate4ai/giftmessage/server/presenter"
	"github.com/gate4ai/giftmessage/shared/commerce"
	"go.uber.org/zap"
)

var orderPage = template.Must(template.New("order").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Order #{{.ID}}</title>
{{- range .Styles}}
  <link rel="stylesheet" href="{{.}}">
{{- end}}
</head>
<body>
  <h1>Thank you. Your order #{{.ID}} has been received.</h1>
  <table class="order-details">
    <thead><tr><th>Product</th><th>Quantity</th></tr></thead>
    <tbody>
{{- range .Lines}}
      <tr>
        <td>{{.Label}}{{if .GiftMessage}}<div class="order-details__gift-message"><strong>Gift message:</strong> {{.GiftMessage}}</div>{{end}}</td>
        <td>{{.Quantity}}</td>
      </tr>
{{- end}}
    </tbody>
  </table>
</body>
</html>
`))

type orderPageLine struct {
	Label       string
	Quantity    int
	GiftMessage template.HTML
}

type orderPageData struct {
	ID     int64
	Styles []string
	Lines  []orderPageLine
}

func parseOrderID(r *http.Request) int64 {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

// loadOrder fetches the order named by the path, writing the error response itself on failure.
func (t *Transport) loadOrder(w http.ResponseWriter, r *http.Request) (*commerce.Order, bool) {
	id := parseOrderID(r)
	if id == 0 {
		sendError(w, http.StatusNotFound, "order_not_found", order.ErrOrderNotFound.Error(), t.logger)
		return nil, false
	}
	o, err := t.pipeline.Checkout.Store().GetOrder(r.Context(), id)
	if errors.Is(err, order.ErrOrderNotFound) {
		sendError(w, http.StatusNotFound, "order_not_found", err.Error(), t.logger)
		return nil, false
	}
	if err != nil {
		t.logger.Error("Failed to load order", zap.Int64("orderID", id), zap.Error(err))
		sendError(w, http.StatusInternalServerError, "internal", "failed to load order", t.logger)
		return nil, false
	}
	return o, true
}

// loadShopperOrder is loadOrder restricted to requests presenting the order key.
// A wrong key looks exactly like a missing order.
func (t *Transport) loadShopperOrder(w http.ResponseWriter, r *http.Request) (*commerce.Order, bool) {
	o, ok := t.loadOrder(w, r)
	if !ok {
		return nil, false
	}
	key := r.URL.Query().Get("key")
	if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(o.Key)) != 1 {
		sendError(w, http.StatusNotFound, "order_not_found", order.ErrOrderNotFound.Error(), t.logger)
		return nil, false
	}
	return o, true
}

func (t *Transport) handleOrderPage(w http.ResponseWriter, r *http.Request) {
	o, ok := t.loadShopperOrder(w, r)
	if !ok {
		return
	}

	data := orderPageData{ID: o.ID}
	for _, line := range o.Lines {
		data.Lines = append(data.Lines, orderPageLine{
			Label:       line.Label,
			Quantity:    line.Quantity,
			GiftMessage: template.HTML(t.pipeline.Display.Present(line, display.SurfaceHTML, display.ContextOrderDetails)),
		})
	}
	if t.pipeline.Display.HasAny(o) {
		data.Styles = t.pipeline.Presenter.Assets(presenter.RouteOrder)
	}

	var buf bytes.Buffer
	if err := orderPage.Execute(&buf, data); err != nil {
		t.logger.Error("Failed to render order page", zap.Int64("orderID", o.ID), zap.Error(err))
		sendError(w, http.StatusInternalServerError, "internal", "failed to render order", t.logger)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// handleOrderEmail previews the gift message section of a transactional
// email. 204 means the email would carry no section.
func (t *Transport) handleOrderEmail(w http.ResponseWriter, r *http.Request) {
	o, ok := t.loadShopperOrder(w, r)
	if !ok {
		return
	}
	category := r.URL.Query().Get("category")
	if category == "" {
		category = email.CustomerProcessingOrder
	}
	plain := r.URL.Query().Get("format") == "plain"

	section, included, err := t.pipeline.Emails.Render(o, category, plain)
	if err != nil {
		t.logger.Error("Failed to render email section", zap.Int64("orderID", o.ID), zap.String("category", category), zap.Error(err))
		sendError(w, http.StatusInternalServerError, "internal", "failed to render email section", t.logger)
		return
	}
	if !included {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if plain {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	w.Write([]byte(section))
}
