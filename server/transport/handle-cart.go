package transport

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gate4ai/giftmessage/server/cart"
	"github.com/gate4ai/giftmessage/server/display"
	"github.com/gate4ai/giftmessage/server/presenter"
	"github.com/gate4ai/giftmessage/shared/commerce"
	"go.uber.org/zap"
)

// lineView is a cart line as returned to the shopper
type lineView struct {
	commerce.CartLine
	GiftMessageHTML string `json:"gift_message_html,omitempty"`
}

type cartView struct {
	Lines           []lineView `json:"lines"`
	HasGiftMessages bool       `json:"has_gift_messages"`
	Assets          []string   `json:"assets,omitempty"`
}

func (t *Transport) viewLine(line commerce.CartLine) lineView {
	v := lineView{CartLine: line}
	if line.GiftMessage != "" {
		v.GiftMessageHTML = t.pipeline.Display.PresentText(line.GiftMessage, display.SurfaceHTML, display.ContextCart)
	}
	return v
}

func (t *Transport) handleGetCart(w http.ResponseWriter, r *http.Request) {
	view := cartView{Lines: []lineView{}}
	if c, ok := t.pipeline.Carts.Get(sessionFromContext(r.Context())); ok {
		for _, line := range c.Lines() {
			view.Lines = append(view.Lines, t.viewLine(line))
		}
		view.HasGiftMessages = c.HasAny()
	}
	if view.HasGiftMessages {
		view.Assets = t.pipeline.Presenter.Assets(presenter.RouteCart)
	}
	sendJSONResponse(w, http.StatusOK, view, t.logger)
}

// handleAddToCart validates the submitted message before the line exists.
// A rejected message leaves the cart untouched.
func (t *Transport) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	req := decodeRequest[AddToCartRequest](w, r, t.logger)
	product, ok := t.lookupProduct(w, req.ProductID)
	if !ok {
		return
	}
	sessionID := sessionFromContext(r.Context())
	logger := t.logger.With(zap.String("sessionID", sessionID), zap.Int64("productID", product.ID))

	message := ""
	if t.pipeline.Presenter.ShouldPresent(*product) {
		normalized, err := t.pipeline.Validator.Validate(req.GiftMessage)
		if err != nil {
			if !sendValidationError(w, err, logger) {
				logger.Error("Gift message validation failed", zap.Error(err))
				sendError(w, http.StatusInternalServerError, "internal", "failed to validate gift message", logger)
			}
			return
		}
		message = normalized
	} else if req.GiftMessage != "" {
		logger.Debug("Ignoring gift message for ineligible product")
	}

	line := t.pipeline.Carts.GetOrCreate(sessionID).AddLine(*product, req.VariationID, req.Quantity, message)
	logger.Debug("Line added", zap.String("token", line.Token), zap.Bool("giftMessage", message != ""))
	sendJSONResponse(w, http.StatusCreated, t.viewLine(line), logger)
}

// handleUpdateGiftMessage replaces the message of a cart line. Lines of
// products without the gift message field only accept an empty message.
func (t *Transport) handleUpdateGiftMessage(w http.ResponseWriter, r *http.Request) {
	req := decodeRequest[GiftMessageRequest](w, r, t.logger)
	c, ok := t.pipeline.Carts.Get(sessionFromContext(r.Context()))
	if !ok {
		sendError(w, http.StatusNotFound, "line_not_found", cart.ErrLineNotFound.Error(), t.logger)
		return
	}
	current, ok := c.Line(r.PathValue("token"))
	if !ok {
		sendError(w, http.StatusNotFound, "line_not_found", cart.ErrLineNotFound.Error(), t.logger)
		return
	}
	product, ok := t.lookupProduct(w, current.ProductID)
	if !ok {
		return
	}
	if !t.pipeline.Presenter.ShouldPresent(*product) && strings.TrimSpace(req.GiftMessage) != "" {
		t.logger.Debug("Gift message refused for ineligible product", zap.Int64("productID", product.ID))
		sendError(w, http.StatusUnprocessableEntity, "not_eligible", "Gift messages are not available for this product.", t.logger)
		return
	}

	normalized, err := t.pipeline.Validator.Validate(req.GiftMessage)
	if err != nil {
		if !sendValidationError(w, err, t.logger) {
			sendError(w, http.StatusInternalServerError, "internal", "failed to validate gift message", t.logger)
		}
		return
	}

	line, err := c.UpdateGiftMessage(r.PathValue("token"), normalized)
	if errors.Is(err, cart.ErrLineNotFound) {
		sendError(w, http.StatusNotFound, "line_not_found", err.Error(), t.logger)
		return
	}
	if err != nil {
		t.logger.Error("Failed to update gift message", zap.Error(err))
		sendError(w, http.StatusInternalServerError, "internal", "failed to update gift message", t.logger)
		return
	}
	sendJSONResponse(w, http.StatusOK, t.viewLine(line), t.logger)
}

func (t *Transport) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	c, ok := t.pipeline.Carts.Get(sessionFromContext(r.Context()))
	if !ok {
		sendError(w, http.StatusNotFound, "line_not_found", cart.ErrLineNotFound.Error(), t.logger)
		return
	}
	if err := c.RemoveLine(r.PathValue("token")); err != nil {
		sendError(w, http.StatusNotFound, "line_not_found", err.Error(), t.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
