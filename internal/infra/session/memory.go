// Package session holds the draft repositories: an in-process one for tests
// and single-instance runs, and a Redis one for shared sessions. Both store
// drafts in their encoded form so that decode failures surface the same way.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"

	jsoniter "github.com/json-iterator/go"
	"github.com/patrickmn/go-cache"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Memory is a DraftRepository backed by go-cache. Entries expire after ttl
// of inactivity on the session.
type Memory struct {
	drafts *cache.Cache
	ttl    time.Duration

	// mu serializes read-modify-write of the sent sets.
	mu sync.Mutex
}

// NewMemory creates a Memory repository.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		drafts: cache.New(ttl, 2*ttl),
		ttl:    ttl,
	}
}

// Draft and sent keys live under disjoint prefixes so no session id can
// address the other kind of entry.
func draftKey(session string) string { return "draft:" + session }

func sentKey(session, quoteID string) string {
	if quoteID == "" {
		return "sent:" + session
	}
	return "sent:" + session + "/" + quoteID
}

func (m *Memory) Save(_ context.Context, session string, draft *domain.QuoteDraft) error {
	raw, err := json.Marshal(draft)
	if err != nil {
		return err
	}
	m.drafts.Set(draftKey(session), raw, cache.DefaultExpiration)
	return nil
}

func (m *Memory) Load(_ context.Context, session string) (*domain.QuoteDraft, error) {
	v, ok := m.drafts.Get(draftKey(session))
	if !ok {
		return nil, nil
	}
	raw, ok := v.([]byte)
	if !ok {
		return nil, errCorrupt
	}

	var draft domain.QuoteDraft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, err
	}
	return &draft, nil
}

func (m *Memory) Clear(_ context.Context, session string) error {
	m.drafts.Delete(draftKey(session))
	return nil
}

func (m *Memory) AddSent(_ context.Context, session, quoteID string, providerIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := map[string]struct{}{}
	if v, ok := m.drafts.Get(sentKey(session, quoteID)); ok {
		if existing, ok := v.(map[string]struct{}); ok {
			for id := range existing {
				set[id] = struct{}{}
			}
		}
	}
	for _, id := range providerIDs {
		set[id] = struct{}{}
	}
	m.drafts.Set(sentKey(session, quoteID), set, cache.DefaultExpiration)
	return nil
}

func (m *Memory) Sent(_ context.Context, session, quoteID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.drafts.Get(sentKey(session, quoteID))
	if !ok {
		return []string{}, nil
	}
	set, _ := v.(map[string]struct{})
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }
