package transport

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gate4ai/giftmessage/server/presenter"
	"go.uber.org/zap"
)

// formDecoder is implemented by request bodies that also accept form posts
type formDecoder interface {
	fromForm(values url.Values)
}

// AddToCartRequest is the body of POST /cart/lines
type AddToCartRequest struct {
	ProductID   int64  `json:"product_id"`
	VariationID int64  `json:"variation_id"`
	Quantity    int    `json:"quantity"`
	GiftMessage string `json:"gift_message"`
}

func (r *AddToCartRequest) fromForm(v url.Values) {
	r.ProductID = formInt64(v, "product_id")
	r.VariationID = formInt64(v, "variation_id")
	r.Quantity = int(formInt64(v, "quantity"))
	r.GiftMessage = v.Get(presenter.FieldName)
}

// GiftMessageRequest is the body of POST /cart/lines/{token}/gift-message
type GiftMessageRequest struct {
	GiftMessage string `json:"gift_message"`
}

func (r *GiftMessageRequest) fromForm(v url.Values) {
	r.GiftMessage = v.Get(presenter.FieldName)
}

// CheckoutRequest is the body of POST /checkout
type CheckoutRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

func (r *CheckoutRequest) fromForm(v url.Values) {
	r.FirstName = v.Get("first_name")
	r.LastName = v.Get("last_name")
	r.Email = v.Get("email")
}

func formInt64(v url.Values, key string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(v.Get(key)), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// decodeRequest reads a JSON or form body into T. Missing or malformed
// input yields the zero value; decoding never fails the request by itself.
func decodeRequest[T any, PT interface {
	*T
	formDecoder
}](w http.ResponseWriter, r *http.Request, logger *zap.Logger) T {
	var req T
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			logger.Debug("Malformed form body", zap.Error(err))
			return req
		}
		PT(&req).fromForm(r.PostForm)
		return req
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Debug("Failed to read request body", zap.Error(err))
		return req
	}
	if len(body) == 0 {
		return req
	}
	var decoded T
	if err := json.Unmarshal(body, &decoded); err != nil {
		logger.Debug("Malformed JSON body", zap.Error(err))
		return req
	}
	return decoded
}
