package transport_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gate4ai/giftmessage/server/cart"
	"github.com/gate4ai/giftmessage/server/display"
	"github.com/gate4ai/giftmessage/server/email"
	"github.com/gate4ai/giftmessage/server/export"
	"github.com/gate4ai/giftmessage/server/order"
	"github.com/gate4ai/giftmessage/server/presenter"
	"github.com/gate4ai/giftmessage/server/transport"
	"github.com/gate4ai/giftmessage/server/validator"
	"github.com/gate4ai/giftmessage/shared/commerce"
	"github.com/gate4ai/giftmessage/shared/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	adminKey   = "test-admin-key"
	shopperKey = "test-shopper-key"

	bearID  = 1
	cardID  = 2
	egiftID = 3
)

type harness struct {
	t      *testing.T
	cfg    *config.InternalConfig
	store  *order.MemoryStore
	server *httptest.Server
	client *http.Client
}

func newHarness(t *testing.T, options ...transport.TransportOption) *harness {
	t.Helper()

	cfg := config.NewInternalConfig()
	cfg.SetProduct(commerce.Product{ID: bearID, Name: "Teddy Bear", Kind: commerce.KindSimple})
	cfg.SetProduct(commerce.Product{ID: cardID, Name: "Greeting Card", Kind: commerce.KindSimple})
	cfg.SetProduct(commerce.Product{ID: egiftID, Name: "E-Gift Card", Kind: commerce.KindVirtual})
	cfg.AddAdminKey("admin-1", adminKey)
	cfg.UserKeyHashes[config.HashAPIKey(shopperKey)] = "user-2"
	cfg.SetUserParam("user-2", "role", "USER")

	store := order.NewMemoryStore()
	adapter := display.New(config.DefaultMetaKey)
	pipeline := &transport.Pipeline{
		Validator: validator.New(config.DefaultMaxMessageLength),
		Presenter: presenter.New(config.DefaultMaxMessageLength),
		Carts:     cart.NewManager(nil),
		Checkout:  order.NewService(store, config.DefaultMetaKey, nil),
		Display:   adapter,
		Emails:    email.New(adapter, config.DefaultEmailCategories),
		Exporter:  export.New(adapter),
	}

	tr, err := transport.New(pipeline, zap.NewNop(), cfg, options...)
	require.NoError(t, err)
	mux := http.NewServeMux()
	tr.RegisterHandlers(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &harness{t: t, cfg: cfg, store: store, server: server, client: newClient(t)}
}

func newClient(t *testing.T) *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

func (h *harness) do(method, path string, body any, headers ...string) (*http.Response, []byte) {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(h.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := h.client.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	return resp, data
}

type lineResponse struct {
	Token           string `json:"token"`
	ProductID       int64  `json:"product_id"`
	Quantity        int    `json:"quantity"`
	GiftMessage     string `json:"gift_message"`
	GiftMessageHTML string `json:"gift_message_html"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type checkoutBody struct {
	OrderID         int64  `json:"order_id"`
	ConfirmationURL string `json:"confirmation_url"`
}

func (h *harness) addLine(productID int64, msg string) (int, lineResponse, errorBody) {
	h.t.Helper()
	resp, data := h.do(http.MethodPost, "/cart/lines", map[string]any{
		"product_id": productID, "quantity": 1, "gift_message": msg,
	})
	var line lineResponse
	var e errorBody
	if resp.StatusCode == http.StatusCreated {
		require.NoError(h.t, json.Unmarshal(data, &line))
	} else {
		require.NoError(h.t, json.Unmarshal(data, &e))
	}
	return resp.StatusCode, line, e
}

func (h *harness) cartLines() []lineResponse {
	h.t.Helper()
	resp, data := h.do(http.MethodGet, "/cart", nil)
	require.Equal(h.t, http.StatusOK, resp.StatusCode)
	var body struct {
		Lines []lineResponse `json:"lines"`
	}
	require.NoError(h.t, json.Unmarshal(data, &body))
	return body.Lines
}

func (h *harness) checkout() checkoutBody {
	h.t.Helper()
	resp, data := h.do(http.MethodPost, "/checkout", map[string]string{
		"first_name": "Ada", "last_name": "Lovelace", "email": "ada@example.com",
	})
	require.Equal(h.t, http.StatusCreated, resp.StatusCode, string(data))
	var body checkoutBody
	require.NoError(h.t, json.Unmarshal(data, &body))
	return body
}

func TestGiftMessageFlowsToOrderEmailAndExport(t *testing.T) {
	h := newHarness(t)

	status, line, _ := h.addLine(bearID, "  Congratulations!!! 🎉  ")
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "Congratulations!!! 🎉", line.GiftMessage)
	assert.Contains(t, line.GiftMessageHTML, "gift-message--cart")

	status, _, _ = h.addLine(cardID, "")
	require.Equal(t, http.StatusCreated, status)

	placed := h.checkout()
	assert.Empty(t, h.cartLines(), "cart is emptied by checkout")

	resp, page := h.do(http.MethodGet, placed.ConfirmationURL, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(page), "Congratulations!!! 🎉")
	assert.Contains(t, string(page), presenter.StyleURL)
	assert.Equal(t, 1, strings.Count(string(page), "order-details__gift-message"), "only the annotated line shows a message")

	emailURL := strings.Replace(placed.ConfirmationURL, "?", "/email?", 1)
	resp, section := h.do(http.MethodGet, emailURL+"&category="+email.CustomerCompletedOrder+"&format=plain", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(section), "Teddy Bear x 1")
	assert.Contains(t, string(section), "Congratulations!!! 🎉")
	assert.NotContains(t, string(section), "Greeting Card")

	resp, section = h.do(http.MethodGet, emailURL, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(section), "gift-message--email")

	resp, _ = h.do(http.MethodGet, emailURL+"&category="+email.NewOrder, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode, "admin emails carry no section")

	resp, data := h.do(http.MethodGet, "/admin/orders/export.csv", nil, "Authorization", "Bearer "+adminKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "gift-messages-")
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, export.Header, records[0])
	assert.Equal(t, "Ada Lovelace", records[1][2])
	assert.Equal(t, "Teddy Bear", records[1][4])
	assert.Equal(t, "Congratulations!!! 🎉", records[1][6])
}

func TestAddToCart_TooLongIsRejectedBeforeTheLineExists(t *testing.T) {
	h := newHarness(t)

	status, _, e := h.addLine(bearID, strings.Repeat("a", 151))
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, string(validator.CodeTooLong), e.Code)
	assert.NotEmpty(t, e.Message)
	assert.Empty(t, h.cartLines())

	status, line, _ := h.addLine(bearID, strings.Repeat("a", 150))
	assert.Equal(t, http.StatusCreated, status)
	assert.Len(t, []rune(line.GiftMessage), 150)
}

func TestAddToCart_UnsafeContentIsRejected(t *testing.T) {
	h := newHarness(t)

	for _, msg := range []string{
		"<script>alert(1)</script>",
		`<a href="javascript:alert(1)">hi</a>`,
		`<img src=x onerror=alert(1)>`,
		"&lt;script&gt;alert(1)&lt;/script&gt;",
		"&#60;iframe src=x&#62;&#60;/iframe&#62;",
	} {
		status, _, e := h.addLine(bearID, msg)
		assert.Equal(t, http.StatusUnprocessableEntity, status, msg)
		assert.Equal(t, string(validator.CodeUnsafeContent), e.Code, msg)
	}
	assert.Empty(t, h.cartLines(), "nothing stored for rejected messages")
	assert.Empty(t, mustListOrders(t, h.store))
}

func TestAddToCart_DifferentMessagesStayDistinct(t *testing.T) {
	h := newHarness(t)

	_, first, _ := h.addLine(bearID, "For Ann")
	_, second, _ := h.addLine(bearID, "For Bob")
	_, again, _ := h.addLine(bearID, "For Ann")

	assert.NotEqual(t, first.Token, second.Token)
	assert.Equal(t, first.Token, again.Token)
	assert.Equal(t, 2, again.Quantity)

	lines := h.cartLines()
	require.Len(t, lines, 2)

	placed := h.checkout()
	o, err := h.store.GetOrder(context.Background(), placed.OrderID)
	require.NoError(t, err)
	require.Len(t, o.Lines, 2)
	assert.Equal(t, "For Ann", o.Lines[0].MetaValue(config.DefaultMetaKey))
	assert.Equal(t, 2, o.Lines[0].Quantity)
	assert.Equal(t, "For Bob", o.Lines[1].MetaValue(config.DefaultMetaKey))
}

func TestAddToCart_IneligibleProductIgnoresMessage(t *testing.T) {
	h := newHarness(t)

	status, line, _ := h.addLine(egiftID, "<script>ignored anyway</script>")
	require.Equal(t, http.StatusCreated, status)
	assert.Empty(t, line.GiftMessage)
}

func TestAddToCart_FormPost(t *testing.T) {
	h := newHarness(t)

	form := url.Values{"product_id": {"1"}, "quantity": {"2"}, presenter.FieldName: {"Hello\nthere"}}
	resp, err := h.client.PostForm(h.server.URL+"/cart/lines", form)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	lines := h.cartLines()
	require.Len(t, lines, 1)
	assert.Equal(t, "Hello\nthere", lines[0].GiftMessage)
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestAddToCart_MalformedInputFailsClosed(t *testing.T) {
	h := newHarness(t)

	req, _ := http.NewRequest(http.MethodPost, h.server.URL+"/cart/lines", strings.NewReader(`{"product_id": 1, "gift_message": `))
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	status, _, e := h.addLine(999, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "product_not_found", e.Code)
	assert.Empty(t, h.cartLines())
}

func TestUpdateGiftMessage(t *testing.T) {
	h := newHarness(t)
	_, line, _ := h.addLine(bearID, "Old")

	resp, data := h.do(http.MethodPost, "/cart/lines/"+line.Token+"/gift-message", map[string]string{"gift_message": "<b>New</b>"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated lineResponse
	require.NoError(t, json.Unmarshal(data, &updated))
	assert.Equal(t, "New", updated.GiftMessage)
	assert.NotEqual(t, line.Token, updated.Token)

	resp, data = h.do(http.MethodPost, "/cart/lines/"+updated.Token+"/gift-message", map[string]string{"gift_message": "<iframe src=x></iframe>"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(data), string(validator.CodeUnsafeContent))

	lines := h.cartLines()
	require.Len(t, lines, 1)
	assert.Equal(t, "New", lines[0].GiftMessage, "rejected update keeps the previous message")

	resp, _ = h.do(http.MethodPost, "/cart/lines/unknown/gift-message", map[string]string{"gift_message": "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = h.do(http.MethodDelete, "/cart/lines/"+updated.Token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, h.cartLines())
}

func TestUpdateGiftMessage_IneligibleProduct(t *testing.T) {
	h := newHarness(t)
	status, line, _ := h.addLine(egiftID, "")
	require.Equal(t, http.StatusCreated, status)

	resp, data := h.do(http.MethodPost, "/cart/lines/"+line.Token+"/gift-message", map[string]string{"gift_message": "Sneaked in"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(data), "not_eligible")

	resp, _ = h.do(http.MethodPost, "/cart/lines/"+line.Token+"/gift-message", map[string]string{"gift_message": "  "})
	assert.Equal(t, http.StatusOK, resp.StatusCode, "clearing is always allowed")

	lines := h.cartLines()
	require.Len(t, lines, 1)
	assert.Empty(t, lines[0].GiftMessage)

	placed := h.checkout()
	o, err := h.store.GetOrder(context.Background(), placed.OrderID)
	require.NoError(t, err)
	require.Len(t, o.Lines, 1)
	assert.Empty(t, o.Lines[0].MetaValue(config.DefaultMetaKey))
}

func TestCartsAreIsolatedPerSession(t *testing.T) {
	h := newHarness(t)
	h.addLine(bearID, "Mine")

	other := &harness{t: t, cfg: h.cfg, store: h.store, server: h.server, client: newClient(t)}
	assert.Empty(t, other.cartLines())
	assert.Len(t, h.cartLines(), 1)
}

func TestCheckout_EmptyCart(t *testing.T) {
	h := newHarness(t)
	resp, data := h.do(http.MethodPost, "/checkout", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(data), "empty_cart")
}

func TestOrderPage_RequiresOrderKey(t *testing.T) {
	h := newHarness(t)
	h.addLine(bearID, "Secret")
	placed := h.checkout()

	path := strings.Split(placed.ConfirmationURL, "?")[0]
	resp, _ := h.do(http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = h.do(http.MethodGet, path+"?key=order_wrong", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = h.do(http.MethodGet, "/orders/abc?key=x", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminEndpoints_Authentication(t *testing.T) {
	h := newHarness(t)
	h.addLine(bearID, "Hi")
	placed := h.checkout()
	path := "/admin/orders/" + strings.TrimPrefix(strings.Split(placed.ConfirmationURL, "?")[0], "/orders/")

	resp, _ := h.do(http.MethodGet, path, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))

	resp, _ = h.do(http.MethodGet, path, nil, "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = h.do(http.MethodGet, path, nil, "Authorization", "Bearer "+shopperKey)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, data := h.do(http.MethodGet, path, nil, "Authorization", "Bearer "+adminKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view struct {
		ID           int64 `json:"id"`
		GiftMessages []struct {
			LineLabel string `json:"line_label"`
			Text      string `json:"text"`
			HTML      string `json:"html"`
		} `json:"gift_messages"`
	}
	require.NoError(t, json.Unmarshal(data, &view))
	assert.Equal(t, placed.OrderID, view.ID)
	require.Len(t, view.GiftMessages, 1)
	assert.Equal(t, "Hi", view.GiftMessages[0].Text)
	assert.Contains(t, view.GiftMessages[0].HTML, "gift-message--admin")
	assert.NotContains(t, string(data), "order_", "order key is never exposed to admins")

	resp, _ = h.do(http.MethodGet, "/admin/orders/export.csv?key="+adminKey, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = h.do(http.MethodGet, "/admin/orders/export.csv?ids=1,x", nil, "Authorization", "Bearer "+adminKey)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminEndpoints_AuthorizationDisabled(t *testing.T) {
	h := newHarness(t)
	h.cfg.AuthorizationTypeValue = config.NotAuthorizedEverywhere

	resp, data := h.do(http.MethodGet, "/admin/orders/export.csv", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Order ID,Order Date,Customer Name,Customer Email,Product,Quantity,Gift Message\n", string(data))
}

func TestThrottling(t *testing.T) {
	h := newHarness(t, transport.WithThrottling(1, 0))

	status, _, _ := h.addLine(cardID, "")
	assert.Equal(t, http.StatusCreated, status)

	resp, data := h.do(http.MethodPost, "/cart/lines", map[string]any{"product_id": cardID})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, string(data), "throttled")

	other := &harness{t: t, server: h.server, client: newClient(t)}
	other.cartLines()
	status, _, _ = other.addLine(cardID, "")
	assert.Equal(t, http.StatusCreated, status, "limits are per session")
}

func TestThrottling_RequestsWithoutCookieShareTheAddressLimit(t *testing.T) {
	h := newHarness(t, transport.WithThrottling(1, 0))
	cookieless := &harness{t: t, server: h.server, client: &http.Client{Timeout: 10 * time.Second}}

	status, _, _ := cookieless.addLine(cardID, "")
	assert.Equal(t, http.StatusCreated, status)

	status, _, e := cookieless.addLine(cardID, "")
	assert.Equal(t, http.StatusTooManyRequests, status, "a fresh session per request does not reset the limit")
	assert.Equal(t, "throttled", e.Code)
}

func TestProductPage(t *testing.T) {
	h := newHarness(t)

	resp, page := h.do(http.MethodGet, "/products/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(page), `name="gift_message"`)
	assert.Contains(t, string(page), presenter.ScriptURL)

	_, line, _ := h.addLine(bearID, "Tom & Jerry")
	_, page = h.do(http.MethodGet, "/products/1?line="+line.Token, nil)
	assert.Contains(t, string(page), "Tom &amp; Jerry</textarea>")

	_, page = h.do(http.MethodGet, "/products/3", nil)
	assert.NotContains(t, string(page), `name="gift_message"`)
	assert.NotContains(t, string(page), presenter.ScriptURL)

	resp, _ = h.do(http.MethodGet, "/products/42", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = h.do(http.MethodGet, presenter.ScriptURL, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data := h.do(http.MethodGet, "/products", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var products []struct {
		ID                 int64 `json:"id"`
		GiftMessageEnabled bool  `json:"gift_message_enabled"`
	}
	require.NoError(t, json.Unmarshal(data, &products))
	require.Len(t, products, 3)
	assert.True(t, products[0].GiftMessageEnabled)
	assert.False(t, products[2].GiftMessageEnabled)
}

func TestAdminEvents(t *testing.T) {
	events := transport.NewEvents(nil)
	t.Cleanup(events.Close)
	h := newHarness(t, transport.WithEvents(events))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.server.URL+"/admin/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+adminKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	received := make(chan transport.CommittedEvent, 1)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			payload, ok := strings.CutPrefix(scanner.Text(), "data: ")
			if !ok {
				continue
			}
			var ev transport.CommittedEvent
			if json.Unmarshal([]byte(payload), &ev) == nil {
				received <- ev
				return
			}
		}
	}()

	h.addLine(cardID, "")
	h.checkout()
	h.addLine(bearID, "Surprise")
	placed := h.checkout()

	select {
	case ev := <-received:
		assert.Equal(t, placed.OrderID, ev.OrderID, "orders without messages are not announced")
		assert.Equal(t, 1, ev.GiftMessages)
		assert.Equal(t, "Ada Lovelace", ev.Customer)
	case <-time.After(5 * time.Second):
		t.Fatal("no committed event received")
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := transport.New(nil, nil, config.NewInternalConfig())
	assert.Error(t, err)

	_, err = transport.New(&transport.Pipeline{}, nil, config.NewInternalConfig())
	assert.ErrorContains(t, err, "missing")

	adapter := display.New(config.DefaultMetaKey)
	pipeline := &transport.Pipeline{
		Validator: validator.New(0),
		Presenter: presenter.New(0),
		Carts:     cart.NewManager(nil),
		Checkout:  order.NewService(order.NewMemoryStore(), config.DefaultMetaKey, nil),
		Display:   adapter,
		Emails:    email.New(adapter, nil),
		Exporter:  export.New(adapter),
	}
	_, err = transport.New(pipeline, nil, nil)
	assert.ErrorContains(t, err, "config cannot be nil")

	_, err = transport.New(pipeline, nil, config.NewInternalConfig(), transport.WithSessionTimeout(0))
	assert.Error(t, err)
}

func mustListOrders(t *testing.T, store order.Store) []*commerce.Order {
	t.Helper()
	orders, err := store.ListOrders(context.Background(), nil)
	require.NoError(t, err)
	return orders
}
