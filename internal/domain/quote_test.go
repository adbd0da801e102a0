package domain_test

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to domain.QuoteStatus
		want     bool
	}{
		{domain.StatusPending, domain.StatusAccepted, true},
		{domain.StatusPending, domain.StatusRejected, true},
		{domain.StatusAccepted, domain.StatusCompleted, true},
		{domain.StatusPending, domain.StatusCompleted, false},
		{domain.StatusRejected, domain.StatusAccepted, false},
		{domain.StatusCompleted, domain.StatusAccepted, false},
		{domain.StatusAccepted, domain.StatusRejected, false},
	}
	for _, tc := range cases {
		if got := domain.CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestRequiredSource(t *testing.T) {
	if from, ok := domain.RequiredSource(domain.StatusCompleted); !ok || from != domain.StatusAccepted {
		t.Errorf("expected completed to require accepted, got %q %v", from, ok)
	}
	if _, ok := domain.RequiredSource(domain.StatusPending); ok {
		t.Error("expected no source for pending")
	}
}

func TestFinalStatuses(t *testing.T) {
	if !domain.StatusRejected.IsFinal() || !domain.StatusCompleted.IsFinal() {
		t.Error("expected rejected and completed to be final")
	}
	if domain.StatusPending.IsFinal() {
		t.Error("pending must not be final")
	}
}

func TestTabs_DerivedFromStatus(t *testing.T) {
	records := []domain.QuoteProvider{
		{ID: "1", Status: domain.StatusPending},
		{ID: "2", Status: domain.StatusPending},
		{ID: "3", Status: domain.StatusAccepted},
		{ID: "4", Status: domain.StatusCompleted},
	}

	counts := domain.CountTabs(records)
	if counts[domain.TabPending] != 2 || counts[domain.TabAccepted] != 1 ||
		counts[domain.TabCompleted] != 1 || counts[domain.TabRejected] != 0 || counts[domain.TabAll] != 4 {
		t.Errorf("unexpected counts: %v", counts)
	}

	records = append(records, domain.QuoteProvider{ID: "5", Status: domain.QuoteStatus("archived")})
	counts = domain.CountTabs(records)
	if counts[domain.TabAll] != 4 {
		t.Errorf("expected unknown statuses to be left out of the total, got %d", counts[domain.TabAll])
	}

	if !domain.TabAll.Includes(domain.StatusRejected) {
		t.Error("all tab must include every status")
	}
	if domain.TabPending.Includes(domain.StatusAccepted) {
		t.Error("pending tab must not include accepted")
	}
}

func TestParseTab(t *testing.T) {
	if domain.ParseTab(" Accepted ") != domain.TabAccepted {
		t.Error("expected accepted")
	}
	if domain.ParseTab("bogus") != domain.TabAll {
		t.Error("expected unknown tab to fall back to all")
	}
}

func TestHaversineKm(t *testing.T) {
	// Praça da Sé -> Av. Paulista 1000, roughly 2.5 km.
	se := domain.GeoPoint{Lat: -23.5503, Lng: -46.6339}
	paulista := domain.GeoPoint{Lat: -23.5647, Lng: -46.6527}

	d := domain.HaversineKm(se, paulista)
	if d < 2.3 || d > 3.5 {
		t.Errorf("expected ~2.5km, got %v", d)
	}
	if domain.HaversineKm(se, se) != 0 {
		t.Error("expected zero distance to self")
	}
	if math.Abs(domain.HaversineKm(se, paulista)-domain.HaversineKm(paulista, se)) > 1e-9 {
		t.Error("expected symmetric distance")
	}
}

func TestCoversDistance(t *testing.T) {
	if !domain.CoversDistance(10, 5) {
		t.Error("10km radius must cover 5km")
	}
	if !domain.CoversDistance(0, 50) {
		t.Error("0 radius means unlimited")
	}
	if domain.CoversDistance(10, 50) {
		t.Error("10km radius must not cover 50km")
	}
}

func TestParseRole(t *testing.T) {
	cases := map[string]domain.Role{
		"admin":     domain.RoleAdmin,
		" ADMIN ":   domain.RoleAdmin,
		"provider":  domain.RoleProvider,
		"client":    domain.RoleClient,
		"":          domain.RoleClient,
		"superuser": domain.RoleClient,
	}
	for in, want := range cases {
		if got := domain.ParseRole(in); got != want {
			t.Errorf("ParseRole(%q): expected %v, got %v", in, want, got)
		}
	}
}

func TestFeatureLimit_Allows(t *testing.T) {
	three := 3
	zero := 0

	if (domain.FeatureLimit{Known: false}).Allows(0) {
		t.Error("unknown limit must not allow")
	}
	if !(domain.FeatureLimit{Known: true}).Allows(1000) {
		t.Error("unlimited must allow")
	}
	if !(domain.FeatureLimit{Known: true, Limit: &three}).Allows(2) {
		t.Error("2 of 3 must allow")
	}
	if (domain.FeatureLimit{Known: true, Limit: &three}).Allows(3) {
		t.Error("3 of 3 must not allow")
	}
	if (domain.FeatureLimit{Known: true, Limit: &zero}).Enabled() {
		t.Error("zero limit is disabled")
	}
}

func TestTierThresholds_Classify(t *testing.T) {
	th := domain.TierThresholds{Basic: 2000, Premium: 7000}

	if th.Classify(1999) != domain.TierFree {
		t.Error("expected free below basic")
	}
	if th.Classify(2000) != domain.TierBasic {
		t.Error("expected basic at threshold")
	}
	if th.Classify(7000) != domain.TierPremium {
		t.Error("expected premium at threshold")
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want domain.ErrorKind
	}{
		{nil, domain.KindNone},
		{&domain.ErrValidation{Field: "city"}, domain.KindValidation},
		{fmt.Errorf("wrap: %w", &domain.ErrNotFound{Resource: "quote"}), domain.KindNotFound},
		{&domain.ErrInvalidTransition{From: domain.StatusRejected, To: domain.StatusAccepted}, domain.KindInvalidTransition},
		{&domain.ErrLimitUnknown{Feature: "x"}, domain.KindLimitUnknown},
		{errors.New("boom"), domain.KindBackend},
	}
	for _, tc := range cases {
		if got := domain.KindOf(tc.err); got != tc.want {
			t.Errorf("KindOf(%v): expected %q, got %q", tc.err, tc.want, got)
		}
	}
}
