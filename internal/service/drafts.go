package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/port"

	"github.com/rs/xid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var draftTracer = otel.Tracer("service/drafts")

// Drafts keeps the multi-step quote form between requests. Store and
// Retrieve swallow repository failures: the form simply starts over.
type Drafts struct {
	repo   port.DraftRepository
	now    func() time.Time
	logger *zap.Logger
}

func NewDrafts(repo port.DraftRepository, now func() time.Time, logger *zap.Logger) *Drafts {
	if now == nil {
		now = time.Now
	}
	return &Drafts{repo: repo, now: now, logger: logger}
}

// NewSession returns a fresh session id.
func (d *Drafts) NewSession() string {
	return xid.New().String()
}

// Store validates and persists draft, re-deriving measured quantities.
// It reports false when the draft is incomplete or the write fails.
func (d *Drafts) Store(ctx context.Context, session string, draft *domain.QuoteDraft) bool {
	ctx, span := draftTracer.Start(ctx, "Drafts.Store")
	defer span.End()

	if session == "" || draft == nil {
		return false
	}
	if !draft.HasServiceSelection() {
		d.logger.Debug("draft rejected: no service selected", zap.String("session", session))
		return false
	}
	if !draft.Address.IsMinimallyComplete() {
		d.logger.Debug("draft rejected: incomplete address", zap.String("session", session))
		return false
	}

	out := *draft
	out.Items = domain.DeriveItemQuantities(draft.Items, draft.Measurements)
	out.CapturedAt = d.now().UTC()

	if err := d.repo.Save(ctx, session, &out); err != nil {
		d.logger.Error("failed to store draft",
			zap.String("session", session),
			zap.Error(err),
		)
		return false
	}
	return true
}

// Retrieve returns the stored draft or nil. Quantities are re-derived only
// when the draft carries measurements, so manual quantities survive.
func (d *Drafts) Retrieve(ctx context.Context, session string) *domain.QuoteDraft {
	ctx, span := draftTracer.Start(ctx, "Drafts.Retrieve")
	defer span.End()

	if session == "" {
		return nil
	}
	draft, err := d.repo.Load(ctx, session)
	if err != nil {
		d.logger.Warn("failed to read draft",
			zap.String("session", session),
			zap.Error(err),
		)
		return nil
	}
	if draft == nil {
		return nil
	}
	if len(draft.Measurements) > 0 {
		draft.Items = domain.DeriveItemQuantities(draft.Items, draft.Measurements)
	}
	return draft
}

// Clear removes the draft. The sent-provider set is kept for the session.
func (d *Drafts) Clear(ctx context.Context, session string) {
	ctx, span := draftTracer.Start(ctx, "Drafts.Clear")
	defer span.End()

	if err := d.repo.Clear(ctx, session); err != nil {
		d.logger.Warn("failed to clear draft",
			zap.String("session", session),
			zap.Error(err),
		)
	}
}

// MarkSent adds providers to the sent set of the session's quote. An empty
// quoteID records providers for the draft that has not been submitted yet.
func (d *Drafts) MarkSent(ctx context.Context, session, quoteID string, providerIDs ...string) error {
	ctx, span := draftTracer.Start(ctx, "Drafts.MarkSent")
	defer span.End()

	if session == "" {
		return &domain.ErrValidation{Field: "session", Message: "required"}
	}
	if len(providerIDs) == 0 {
		return nil
	}
	if err := d.repo.AddSent(ctx, session, quoteID, providerIDs...); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

// SentProviders lists provider ids already sent the session's quote, sorted.
func (d *Drafts) SentProviders(ctx context.Context, session, quoteID string) ([]string, error) {
	ctx, span := draftTracer.Start(ctx, "Drafts.SentProviders")
	defer span.End()

	if session == "" {
		return []string{}, nil
	}
	ids, err := d.repo.Sent(ctx, session, quoteID)
	if err != nil {
		return nil, fmt.Errorf("sent providers: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// ValidSession reports whether id has the shape NewSession hands out.
func ValidSession(id string) bool {
	_, err := xid.FromString(id)
	return err == nil
}
