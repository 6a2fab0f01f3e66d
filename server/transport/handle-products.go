package transport

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/gate4ai/giftmessage/server/presenter"
	"github.com/gate4ai/giftmessage/shared/commerce"
	"github.com/gate4ai/giftmessage/shared/config"
	"go.uber.org/zap"
)

var productPage = template.Must(template.New("product").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>{{.Product.Name}}</title>
{{- range .Styles}}
  <link rel="stylesheet" href="{{.}}">
{{- end}}
</head>
<body>
  <h1>{{.Product.Name}}</h1>
  <form method="post" action="/cart/lines">
    <input type="hidden" name="product_id" value="{{.Product.ID}}">
    <label>Quantity <input type="number" name="quantity" value="1" min="1"></label>
    {{.Field}}
    <button type="submit">Add to cart</button>
  </form>
{{- range .Scripts}}
  <script src="{{.}}" defer></script>
{{- end}}
</body>
</html>
`))

type productPageData struct {
	Product commerce.Product
	Field   template.HTML
	Styles  []string
	Scripts []string
}

// productView is a catalog entry as listed by GET /products
type productView struct {
	commerce.Product
	GiftMessageEnabled bool `json:"gift_message_enabled"`
}

func (t *Transport) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := t.config.ListProducts()
	if err != nil {
		t.logger.Error("Failed to list products", zap.Error(err))
		sendError(w, http.StatusInternalServerError, "internal", "failed to list products", t.logger)
		return
	}
	views := make([]productView, 0, len(products))
	for _, p := range products {
		views = append(views, productView{Product: p, GiftMessageEnabled: t.pipeline.Presenter.ShouldPresent(p)})
	}
	sendJSONResponse(w, http.StatusOK, views, t.logger)
}

// lookupProduct resolves a product ID, writing the error response itself on failure.
func (t *Transport) lookupProduct(w http.ResponseWriter, id int64) (*commerce.Product, bool) {
	if id <= 0 {
		sendError(w, http.StatusBadRequest, "invalid_product", "product_id is required", t.logger)
		return nil, false
	}
	product, err := t.config.GetProduct(id)
	if errors.Is(err, config.ErrNotFound) {
		sendError(w, http.StatusNotFound, "product_not_found", "product not found", t.logger)
		return nil, false
	}
	if err != nil {
		t.logger.Error("Failed to load product", zap.Int64("productID", id), zap.Error(err))
		sendError(w, http.StatusInternalServerError, "internal", "failed to load product", t.logger)
		return nil, false
	}
	return product, true
}

// handleProductPage renders the product form. ?line=<token> prefills the
// field with the message of that line in the shopper's cart.
func (t *Transport) handleProductPage(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	product, ok := t.lookupProduct(w, id)
	if !ok {
		return
	}

	data := productPageData{Product: *product}
	if t.pipeline.Presenter.ShouldPresent(*product) {
		current := ""
		if token := r.URL.Query().Get("line"); token != "" {
			if c, found := t.pipeline.Carts.Get(sessionFromContext(r.Context())); found {
				current, _ = c.Get(token)
			}
		}
		field, err := t.pipeline.Presenter.Render(*product, current)
		if err != nil {
			t.logger.Error("Failed to render gift message field", zap.Int64("productID", product.ID), zap.Error(err))
			sendError(w, http.StatusInternalServerError, "internal", "failed to render product", t.logger)
			return
		}
		data.Field = field
		data.Styles, data.Scripts = splitAssets(t.pipeline.Presenter.Assets(presenter.RouteProduct))
	}

	var buf bytes.Buffer
	if err := productPage.Execute(&buf, data); err != nil {
		t.logger.Error("Failed to render product page", zap.Error(err))
		sendError(w, http.StatusInternalServerError, "internal", "failed to render product", t.logger)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func splitAssets(urls []string) (styles, scripts []string) {
	for _, u := range urls {
		if strings.HasSuffix(u, ".css") {
			styles = append(styles, u)
		} else {
			scripts = append(scripts, u)
		}
	}
	return styles, scripts
}
