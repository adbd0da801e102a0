// Package service holds the marketplace use cases. AuthService validates
// platform-issued tokens and manages profiles and roles through the
// backend's remote procedures.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var authTracer = otel.Tracer("service/auth")

// AuthService turns bearer tokens into principals.
type AuthService struct {
	policy    port.PolicyStore
	jwtSecret []byte
	logger    *zap.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(policy port.PolicyStore, jwtSecret string, logger *zap.Logger) *AuthService {
	return &AuthService{
		policy:    policy,
		jwtSecret: []byte(jwtSecret),
		logger:    logger,
	}
}

// ============================================================
// Token validation (used by middleware)
// ============================================================

// JWTClaims represents the claims of a platform access token.
type JWTClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

func (s *AuthService) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	if claims.Subject == "" {
		return nil, &domain.ErrUnauthorized{Message: "token has no subject"}
	}
	if claims.Role == "anon" {
		return nil, &domain.ErrUnauthorized{Message: "anonymous tokens are not accepted"}
	}
	return claims, nil
}

// Authenticate validates the token and resolves the caller's role. A
// failed role lookup degrades to Client rather than failing the request.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*domain.Principal, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Authenticate")
	defer span.End()

	claims, err := s.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, err
	}

	role, err := s.policy.GetUserRole(ctx, claims.Subject)
	if err != nil {
		s.logger.Warn("role lookup failed, using least privilege",
			zap.String("user_id", claims.Subject),
			zap.Error(err),
		)
		role = domain.RoleClient
	}
	span.SetAttributes(attribute.String("role", role.String()))

	return &domain.Principal{UserID: claims.Subject, Email: claims.Email, Role: role}, nil
}

// ============================================================
// Profiles and roles
// ============================================================

// CreateProfile registers the caller's profile. Self sign-up can only pick
// client or provider.
func (s *AuthService) CreateProfile(ctx context.Context, caller domain.Principal, p domain.UserProfile) (*domain.UserProfile, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.CreateProfile")
	defer span.End()

	if strings.TrimSpace(p.FullName) == "" {
		return nil, &domain.ErrValidation{Field: "full_name", Message: "required"}
	}
	if p.Role == domain.RoleAdmin {
		return nil, &domain.ErrForbidden{Action: "self-assign admin role"}
	}

	p.ID = caller.UserID
	if p.Email == "" {
		p.Email = caller.Email
	}

	created, err := s.policy.CreateUserProfile(ctx, &p)
	if err != nil {
		return nil, err
	}
	s.logger.Info("profile created",
		zap.String("user_id", created.ID),
		zap.String("role", created.Role.String()),
	)
	return created, nil
}

// UpdateUserRole changes another user's role. The admin check is re-read
// from the backend rather than trusted from the request principal.
func (s *AuthService) UpdateUserRole(ctx context.Context, caller domain.Principal, userID string, role domain.Role) error {
	ctx, span := authTracer.Start(ctx, "AuthService.UpdateUserRole")
	defer span.End()

	if userID == "" {
		return &domain.ErrValidation{Field: "user_id", Message: "required"}
	}

	admin, err := s.policy.IsAdmin(ctx, caller.UserID)
	if err != nil {
		return fmt.Errorf("admin check: %w", err)
	}
	if !admin {
		return &domain.ErrForbidden{Action: "update user role"}
	}

	if err := s.policy.UpdateUserRole(ctx, userID, role); err != nil {
		return err
	}
	s.logger.Info("user role updated",
		zap.String("user_id", userID),
		zap.String("role", role.String()),
		zap.String("by", caller.UserID),
	)
	return nil
}
