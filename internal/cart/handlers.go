package cart

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-florist/internal/common"
)

// Handler wires the pricing service to HTTP.
type Handler struct {
	Svc *Service
}

// CalculatePrice prices the posted cart.
func (h *Handler) CalculatePrice(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "pricing service not configured", nil)
		return
	}
	var req CalculatePriceRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteAppError(w, err)
		return
	}
	quote, err := h.Svc.Quote(r.Context(), toItems(req.CartItems), req.Currency)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Success(w, http.StatusOK, newPriceResponse(quote), "cart priced")
}

// VerifyQuote re-prices the cart and checks it against a previously issued
// fingerprint. A mismatch answers 409 with the fresh quote.
func (h *Handler) VerifyQuote(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "pricing service not configured", nil)
		return
	}
	var req VerifyQuoteRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteAppError(w, err)
		return
	}
	quote, err := h.Svc.Verify(r.Context(), toItems(req.CartItems), req.Currency, req.Fingerprint)
	if errors.Is(err, ErrPriceChanged) {
		common.JSONErrorWithData(w, http.StatusConflict, common.CodePriceChanged, "cart prices have changed", newPriceResponse(quote))
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Success(w, http.StatusOK, newPriceResponse(quote), "quote is current")
}

// ProductLots lists the supplier lots backing a product.
func (h *Handler) ProductLots(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "pricing service not configured", nil)
		return
	}
	productID := chi.URLParam(r, "productId")
	lots, base, err := h.Svc.Lots(r.Context(), productID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Success(w, http.StatusOK, newLotsResponse(productID, base, lots), "")
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case common.IsAppError(err):
		common.WriteAppError(w, err)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid cart", nil)
	case errors.Is(err, ErrPricingUnavailable):
		common.JSONError(w, http.StatusServiceUnavailable, common.CodeInventoryUnavailable, "pricing is temporarily unavailable", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to price cart", nil)
	}
}
