package controllers

import (
	"net/http"

	"github.com/noorbazaar/storefront-backend/api/responses"
	"github.com/noorbazaar/storefront-backend/api/validators"
	"github.com/noorbazaar/storefront-backend/internal/cache/gateway"
	pkgerrors "github.com/noorbazaar/storefront-backend/pkg/errors"
	"github.com/noorbazaar/storefront-backend/pkg/logger"
)

type cacheControlRequest struct {
	Command string `json:"command" validate:"required"`
}

// CacheControl executes a gateway control message, currently only CLEAR_CACHE.
func CacheControl(gw *gateway.Gateway, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload cacheControlRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := gw.HandleControl(r.Context(), payload.Command); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported cache command"))
			return
		}

		responses.WriteSuccess(w, map[string]string{"command": payload.Command, "status": "applied"})
	}
}
