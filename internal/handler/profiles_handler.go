package handler

import (
	"net/http"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Profiles and roles
// ============================================================

type roleBody struct {
	Role domain.Role `json:"role"`
}

type meResponse struct {
	UserID string      `json:"user_id"`
	Email  string      `json:"email,omitempty"`
	Role   domain.Role `json:"role"`
}

func createProfileHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/profiles")
		defer span.End()

		var profile domain.UserProfile
		if err := decodeBody(r, &profile); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		caller, _ := PrincipalFromContext(ctx)
		created, err := authSvc.CreateProfile(ctx, caller, profile)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

// myRoleHandler reports the role resolved by the auth middleware.
func myRoleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, _ := PrincipalFromContext(r.Context())
		writeJSON(w, http.StatusOK, meResponse{UserID: caller.UserID, Email: caller.Email, Role: caller.Role})
	}
}

func updateUserRoleHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userId")

		ctx, span := tracer.Start(r.Context(), "PUT /v1/admin/users/{userId}/role")
		defer span.End()

		var req roleBody
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		caller, _ := PrincipalFromContext(ctx)
		if err := authSvc.UpdateUserRole(ctx, caller, userID, req.Role); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "role updated", ID: userID})
	}
}
