package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/session"

	"github.com/stretchr/testify/require"
)

func TestMemory_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	repo := session.NewMemory(time.Hour)

	got, err := repo.Load(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, got, "absent session loads as nil")

	draft := &domain.QuoteDraft{
		Path:    domain.CatalogPath{ServiceID: "svc"},
		Address: domain.Address{Street: "Av. Paulista", City: "São Paulo"},
		Items: map[string]domain.DraftItem{
			"i1": {ItemID: "i1", Unit: domain.UnitQuantity, Quantity: 2, Selected: true},
		},
		CapturedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Save(ctx, "s1", draft))

	got, err = repo.Load(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, draft, got)

	require.NoError(t, repo.Clear(ctx, "s1"))
	got, err = repo.Load(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMemory_SentIsAdditive(t *testing.T) {
	ctx := context.Background()
	repo := session.NewMemory(time.Hour)

	require.NoError(t, repo.AddSent(ctx, "s1", "q1", "p2", "p1"))
	require.NoError(t, repo.AddSent(ctx, "s1", "q1", "p1", "p3"))

	ids, err := repo.Sent(ctx, "s1", "q1")
	require.NoError(t, err)
	require.Equal(t, []string{"p1", "p2", "p3"}, ids)

	require.NoError(t, repo.Clear(ctx, "s1"))
	ids, err = repo.Sent(ctx, "s1", "q1")
	require.NoError(t, err)
	require.Equal(t, []string{"p1", "p2", "p3"}, ids, "clearing the draft keeps the sent set")

	other, err := repo.Sent(ctx, "s2", "q1")
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestMemory_SentIsScopedByQuote(t *testing.T) {
	ctx := context.Background()
	repo := session.NewMemory(time.Hour)

	require.NoError(t, repo.AddSent(ctx, "s1", "q1", "p1"))
	require.NoError(t, repo.AddSent(ctx, "s1", "", "p9"))

	ids, err := repo.Sent(ctx, "s1", "q2")
	require.NoError(t, err)
	require.Empty(t, ids)

	ids, err = repo.Sent(ctx, "s1", "")
	require.NoError(t, err)
	require.Equal(t, []string{"p9"}, ids)
}

func TestMemory_DraftKeysNeverReachSentSets(t *testing.T) {
	ctx := context.Background()
	repo := session.NewMemory(time.Hour)

	require.NoError(t, repo.AddSent(ctx, "abc", "", "p1", "p2"))
	draft := &domain.QuoteDraft{
		Path:    domain.CatalogPath{ServiceID: "svc"},
		Address: domain.Address{Street: "Rua A", City: "Recife"},
	}
	require.NoError(t, repo.Save(ctx, "sent:abc", draft))
	require.NoError(t, repo.Clear(ctx, "sent:abc"))

	ids, err := repo.Sent(ctx, "abc", "")
	require.NoError(t, err)
	require.Equal(t, []string{"p1", "p2"}, ids)
}
