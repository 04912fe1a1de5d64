package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/repository/store"
	"github.com/mamadbah2/stockcount/internal/service/counting"
)

// TeamMemberHeader names the operator submitting a request.
const TeamMemberHeader = "X-Team-Member"

// errSheetsDisabled is returned by sheet endpoints when no spreadsheet is configured.
var errSheetsDisabled = errors.New("google sheets integration is not configured")

// respondError maps workflow errors onto status codes: validation 422,
// missing entries 404, recoverable store failures 503, anything else 502.
func respondError(c *gin.Context, logger *zap.Logger, msg string, err error) {
	var verr *counting.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, counting.ErrEntryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, errSheetsDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case store.Recoverable(err):
		logger.Warn(msg, zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store temporarily unavailable, try again later"})
	default:
		logger.Error(msg, zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": msg})
	}
}

// savedStatus is 202 when the write only reached the local store.
func savedStatus(savedLocally bool, ok int) int {
	if savedLocally {
		return http.StatusAccepted
	}
	return ok
}
