package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

var (
	json     = jsoniter.ConfigCompatibleWithStandardLibrary
	validate = validator.New(validator.WithRequiredStructEnabled())
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// decodeBody reads a JSON body into dest and runs struct validation.
func decodeBody(r *http.Request, dest any) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return &domain.ErrValidation{Field: "body", Message: "invalid JSON"}
	}
	if err := validate.StructCtx(r.Context(), dest); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &domain.ErrValidation{
				Field:   strings.ToLower(fe.Field()),
				Message: fmt.Sprintf("failed on %q", fe.Tag()),
			}
		}
		return &domain.ErrValidation{Field: "body", Message: err.Error()}
	}
	return nil
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	kind := domain.KindOf(err)

	var status int
	switch kind {
	case domain.KindValidation:
		logger.Debug("validation error", zap.String("error", err.Error()))
		status = http.StatusBadRequest
	case domain.KindNotFound:
		logger.Debug("not found", zap.String("error", err.Error()))
		status = http.StatusNotFound
	case domain.KindForbidden:
		logger.Warn("forbidden access", zap.String("error", err.Error()))
		status = http.StatusForbidden
	case domain.KindUnauthorized:
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		status = http.StatusUnauthorized
	case domain.KindConflict, domain.KindInvalidTransition:
		logger.Debug("conflict", zap.String("error", err.Error()))
		status = http.StatusConflict
	case domain.KindLimitExceeded, domain.KindLimitUnknown:
		logger.Warn("feature limit", zap.String("error", err.Error()))
		status = http.StatusForbidden
	case domain.KindUnavailable:
		logger.Error("circuit breaker open", zap.Error(err))
		status = http.StatusServiceUnavailable
	default:
		var ext *domain.ErrExternalService
		if errors.As(err, &ext) {
			logger.Error("external service error", zap.String("service", ext.Service), zap.Error(err))
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: "upstream service error", Kind: string(domain.KindBackend)})
			return
		}
		logger.Error("unhandled error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error", Kind: string(domain.KindBackend)})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: string(kind)})
}
