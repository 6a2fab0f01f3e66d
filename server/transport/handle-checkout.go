package transport

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gate4ai/giftmessage/server/order"
	"github.com/gate4ai/giftmessage/shared/commerce"
	"go.uber.org/zap"
)

type checkoutResponse struct {
	OrderID         int64                 `json:"order_id"`
	OrderKey        string                `json:"order_key"`
	Status          string                `json:"status"`
	Lines           []*commerce.OrderLine `json:"lines"`
	ConfirmationURL string                `json:"confirmation_url"`
}

func (t *Transport) handleCheckout(w http.ResponseWriter, r *http.Request) {
	req := decodeRequest[CheckoutRequest](w, r, t.logger)
	sessionID := sessionFromContext(r.Context())

	c, ok := t.pipeline.Carts.Get(sessionID)
	if !ok {
		sendError(w, http.StatusBadRequest, "empty_cart", order.ErrEmptyCart.Error(), t.logger)
		return
	}

	customer := commerce.Customer{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     strings.TrimSpace(req.Email),
	}
	o, err := t.pipeline.Checkout.Checkout(r.Context(), c, customer)
	if errors.Is(err, order.ErrEmptyCart) {
		sendError(w, http.StatusBadRequest, "empty_cart", err.Error(), t.logger)
		return
	}
	if err != nil {
		t.logger.Error("Checkout failed", zap.String("sessionID", sessionID), zap.Error(err))
		sendError(w, http.StatusInternalServerError, "internal", "failed to place order", t.logger)
		return
	}

	sendJSONResponse(w, http.StatusCreated, checkoutResponse{
		OrderID:         o.ID,
		OrderKey:        o.Key,
		Status:          o.Status,
		Lines:           o.Lines,
		ConfirmationURL: fmt.Sprintf("/orders/%d?key=%s", o.ID, url.QueryEscape(o.Key)),
	}, t.logger)
}
