package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voldermortik/blue-horizon-ai-concierge/internal/apperr"
)

// statusFor maps an error kind to an HTTP status
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindRejectedQuery, apperr.KindTranslationFailure:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidTransition, apperr.KindUnavailable, apperr.KindPriceStale:
		return http.StatusConflict
	case apperr.KindToolTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with a guest-safe message and its kind
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	c.JSON(statusFor(kind), gin.H{
		"error": apperr.UserMessage(kind),
		"kind":  kind,
	})
}
