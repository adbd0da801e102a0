package supabase

import (
	"bytes"
	"context"
	"strings"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"

	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Remote procedures: roles, profiles, feature limits
// ============================================================

// GetUserRole calls get_user_role_safely, which reads the profile row
// without tripping row-level-security recursion.
func (c *Client) GetUserRole(ctx context.Context, userID string) (domain.Role, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUserRole")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	body, err := c.rpc(ctx, "get_user_role_safely", map[string]any{"user_id": userID}, true)
	if err != nil {
		return domain.RoleClient, err
	}

	var raw *string
	if len(body) > 0 {
		if err := json.Unmarshal(body, &raw); err != nil {
			return domain.RoleClient, err
		}
	}
	if raw == nil {
		return domain.RoleClient, nil
	}
	return domain.ParseRole(*raw), nil
}

func (c *Client) IsAdmin(ctx context.Context, userID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Supabase.IsAdmin")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	body, err := c.rpc(ctx, "is_admin", map[string]any{"user_id": userID}, true)
	if err != nil {
		return false, err
	}
	var ok bool
	if len(body) > 0 {
		if err := json.Unmarshal(body, &ok); err != nil {
			return false, err
		}
	}
	return ok, nil
}

func (c *Client) UpdateUserRole(ctx context.Context, userID string, role domain.Role) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateUserRole")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("role", role.String()),
	)

	_, err := c.rpc(ctx, "update_user_role", map[string]any{
		"target_user_id": userID,
		"new_role":       role.String(),
	}, false)
	return err
}

func (c *Client) CreateUserProfile(ctx context.Context, p *domain.UserProfile) (*domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateUserProfile")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", p.ID))

	_, err := c.rpc(ctx, "create_user_profile", map[string]any{
		"user_id":   p.ID,
		"full_name": p.FullName,
		"email":     p.Email,
		"phone":     p.Phone,
		"role":      p.Role.String(),
	}, false)
	if err != nil {
		if isConflict(err) {
			return nil, &domain.ErrConflict{Message: "profile already exists"}
		}
		return nil, err
	}
	out := *p
	return &out, nil
}

// GetFeatureLimit calls get_feature_limit. The procedure answers with a
// {"limit": n} object, {"limit": null} for unlimited, or SQL null when the
// user's tier carries no entry for the feature. Anything unreadable, and any
// transport failure, is reported as an unknown limit rather than an error.
func (c *Client) GetFeatureLimit(ctx context.Context, userID, feature string) (domain.FeatureLimit, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetFeatureLimit")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("feature", feature),
	)

	unknown := domain.FeatureLimit{Feature: feature}

	body, err := c.rpc(ctx, "get_feature_limit", map[string]any{
		"user_id":      userID,
		"feature_name": feature,
	}, true)
	if err != nil {
		c.logger.Warn("feature limit lookup failed",
			zap.String("feature", feature),
			zap.Error(err),
		)
		return unknown, nil
	}
	return parseFeatureLimit(body, feature), nil
}

func parseFeatureLimit(body []byte, feature string) domain.FeatureLimit {
	unknown := domain.FeatureLimit{Feature: feature}

	body = bytes.TrimSpace(body)
	if len(body) == 0 || strings.EqualFold(string(body), "null") {
		return unknown
	}

	var resp map[string]jsoniter.RawMessage
	if err := json.Unmarshal(body, &resp); err != nil {
		return unknown
	}
	raw, ok := resp["limit"]
	if !ok {
		return unknown
	}
	if string(bytes.TrimSpace(raw)) == "null" {
		return domain.FeatureLimit{Feature: feature, Known: true}
	}

	var limit int
	if err := json.Unmarshal(raw, &limit); err != nil || limit < 0 {
		return unknown
	}
	return domain.FeatureLimit{Feature: feature, Limit: &limit, Known: true}
}
