package postgres

import (
	"context"
	"errors"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"

	"github.com/jackc/pgx/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// The policy methods call the same SQL functions the hosted backend exposes
// as remote procedures.

func (s *Store) GetUserRole(ctx context.Context, userID string) (domain.Role, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetUserRole")
	defer span.End()

	var raw *string
	if err := s.db.QueryRow(ctx, `SELECT get_user_role_safely($1)`, userID).Scan(&raw); err != nil {
		return domain.RoleClient, err
	}
	if raw == nil {
		return domain.RoleClient, nil
	}
	return domain.ParseRole(*raw), nil
}

func (s *Store) IsAdmin(ctx context.Context, userID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Postgres.IsAdmin")
	defer span.End()

	var ok bool
	err := s.db.QueryRow(ctx, `SELECT is_admin($1)`, userID).Scan(&ok)
	return ok, err
}

func (s *Store) UpdateUserRole(ctx context.Context, userID string, role domain.Role) error {
	ctx, span := tracer.Start(ctx, "Postgres.UpdateUserRole")
	defer span.End()

	_, err := s.db.Exec(ctx, `SELECT update_user_role($1, $2)`, userID, role.String())
	return err
}

func (s *Store) CreateUserProfile(ctx context.Context, p *domain.UserProfile) (*domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreateUserProfile")
	defer span.End()

	_, err := s.db.Exec(ctx, `SELECT create_user_profile($1, $2, $3, $4, $5)`,
		p.ID, p.FullName, p.Email, p.Phone, p.Role.String())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &domain.ErrConflict{Message: "profile already exists"}
		}
		return nil, err
	}
	out := *p
	return &out, nil
}

// GetFeatureLimit reads get_feature_limit's jsonb answer. SQL NULL, a
// missing key or a failed query are all an unknown limit.
func (s *Store) GetFeatureLimit(ctx context.Context, userID, feature string) (domain.FeatureLimit, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetFeatureLimit")
	defer span.End()

	unknown := domain.FeatureLimit{Feature: feature}

	var raw []byte
	err := s.db.QueryRow(ctx, `SELECT get_feature_limit($1, $2)::text`, userID, feature).Scan(&raw)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.logger.Warn("feature limit lookup failed", zap.String("feature", feature), zap.Error(err))
		}
		return unknown, nil
	}
	if raw == nil {
		return unknown, nil
	}

	var resp map[string]*int
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, &resp); err != nil {
		return unknown, nil
	}
	limit, ok := resp["limit"]
	if !ok || (limit != nil && *limit < 0) {
		return unknown, nil
	}
	return domain.FeatureLimit{Feature: feature, Limit: limit, Known: true}, nil
}
