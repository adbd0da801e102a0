package session

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("session")

var errCorrupt = errors.New("session: stored draft has an unexpected type")

// Redis is a DraftRepository shared across instances. The draft is a string
// key and the sent providers a set; both carry the session TTL, refreshed on
// every write.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedis creates a Redis repository. prefix namespaces the keys.
func NewRedis(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *Redis) Save(ctx context.Context, session string, draft *domain.QuoteDraft) error {
	ctx, span := tracer.Start(ctx, "Redis.SaveDraft")
	defer span.End()
	span.SetAttributes(attribute.String("session", session))

	raw, err := json.Marshal(draft)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.prefix+draftKey(session), raw, r.ttl).Err()
}

func (r *Redis) Load(ctx context.Context, session string) (*domain.QuoteDraft, error) {
	ctx, span := tracer.Start(ctx, "Redis.LoadDraft")
	defer span.End()
	span.SetAttributes(attribute.String("session", session))

	raw, err := r.rdb.Get(ctx, r.prefix+draftKey(session)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var draft domain.QuoteDraft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, err
	}
	return &draft, nil
}

func (r *Redis) Clear(ctx context.Context, session string) error {
	ctx, span := tracer.Start(ctx, "Redis.ClearDraft")
	defer span.End()

	return r.rdb.Del(ctx, r.prefix+draftKey(session)).Err()
}

func (r *Redis) AddSent(ctx context.Context, session, quoteID string, providerIDs ...string) error {
	ctx, span := tracer.Start(ctx, "Redis.AddSent")
	defer span.End()
	span.SetAttributes(
		attribute.String("quote.id", quoteID),
		attribute.Int("providers", len(providerIDs)),
	)

	if len(providerIDs) == 0 {
		return nil
	}

	members := make([]any, 0, len(providerIDs))
	for _, id := range providerIDs {
		members = append(members, id)
	}

	key := r.prefix + sentKey(session, quoteID)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	return err
}

func (r *Redis) Sent(ctx context.Context, session, quoteID string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Redis.Sent")
	defer span.End()

	ids, err := r.rdb.SMembers(ctx, r.prefix+sentKey(session, quoteID)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// Ping checks the connection for the readiness probe.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}
