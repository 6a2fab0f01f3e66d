package extra

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gate4ai/giftmessage/shared/config"
	"go.uber.org/zap"
)

// StatusChecker is anything that can report its own health
type StatusChecker interface {
	Status(ctx context.Context) error
}

// StatusResponse represents the response structure for the status endpoint
type StatusResponse struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
	Config  string `json:"config"`
	Orders  string `json:"orders"`
	Carts   int    `json:"carts"`
}

// StatusHandler creates an HTTP handler for checking system status.
// carts may be nil.
func StatusHandler(cfg config.IConfig, orders StatusChecker, carts func() int, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handlerLogger := logger.With(zap.String("handler", "StatusHandler"))
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		response := StatusResponse{Config: "ok", Orders: "none"}
		response.Name, _ = cfg.ServerName()
		response.Version, _ = cfg.ServerVersion()

		if err := cfg.Status(ctx); err != nil {
			handlerLogger.Error("Failed to get config status", zap.Error(err))
			response.Config = "error"
		}
		if orders != nil {
			if err := orders.Status(ctx); err != nil {
				handlerLogger.Error("Order store unavailable", zap.Error(err))
				response.Orders = "error"
			} else {
				response.Orders = "ok"
			}
		}
		if carts != nil {
			response.Carts = carts()
		}

		// Always 200; the body carries the component states.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	}
}
