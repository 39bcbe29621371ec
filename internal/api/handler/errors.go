package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/folio-core/internal/domain"
	"github.com/xela07ax/folio-core/internal/shared"
)

// writeServiceError переводит таксономию ошибок в HTTP-статусы.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var invalid *domain.InvalidInputError
	switch {
	case errors.As(err, &invalid):
		shared.WriteError(w, http.StatusBadRequest, "invalid_input", invalid.Error())
	case errors.Is(err, domain.ErrNotFound):
		shared.WriteError(w, http.StatusNotFound, "not_found", "")
	default:
		logger.Error("request failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "internal", "")
	}
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, v any) {
	if err := shared.WriteJSON(w, status, v); err != nil {
		logger.Warn("write response failed", zap.Error(err))
	}
}

var (
	errInvertedRange = errors.New("must be after from")
	errBadLimit      = errors.New("must be an integer between 1 and 10000")
)
