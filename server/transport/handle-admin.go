package transport

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gate4ai/giftmessage/server/display"
	"github.com/gate4ai/giftmessage/server/export"
	"github.com/gate4ai/giftmessage/shared/commerce"
	"go.uber.org/zap"
)

type adminGiftMessage struct {
	display.Entry
	HTML string `json:"html"`
}

type adminOrderView struct {
	*commerce.Order
	GiftMessages []adminGiftMessage `json:"gift_messages"`
}

func (t *Transport) handleAdminOrder(w http.ResponseWriter, r *http.Request) {
	o, ok := t.loadOrder(w, r)
	if !ok {
		return
	}
	view := adminOrderView{Order: o, GiftMessages: []adminGiftMessage{}}
	for _, entry := range t.pipeline.Display.CollectForOrder(o) {
		view.GiftMessages = append(view.GiftMessages, adminGiftMessage{
			Entry: entry,
			HTML:  t.pipeline.Display.PresentText(entry.Text, display.SurfaceHTML, display.ContextAdmin),
		})
	}
	sendJSONResponse(w, http.StatusOK, view, t.logger)
}

// parseOrderIDs reads a comma separated id list. Empty means all orders.
func parseOrderIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid order id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (t *Transport) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	ids, err := parseOrderIDs(r.URL.Query().Get("ids"))
	if err != nil {
		sendError(w, http.StatusBadRequest, "invalid_ids", err.Error(), t.logger)
		return
	}
	orders, err := t.pipeline.Checkout.Store().ListOrders(r.Context(), ids)
	if err != nil {
		t.logger.Error("Failed to list orders for export", zap.Error(err))
		sendError(w, http.StatusInternalServerError, "internal", "failed to load orders", t.logger)
		return
	}
	data, err := t.pipeline.Exporter.GenerateCSV(orders)
	if err != nil {
		t.logger.Error("Failed to generate CSV", zap.Error(err))
		sendError(w, http.StatusInternalServerError, "internal", "failed to generate export", t.logger)
		return
	}

	t.logger.Info("Gift message export", zap.Int("orders", len(orders)), zap.Int("bytes", len(data)))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename(time.Now())))
	w.Write(data)
}
