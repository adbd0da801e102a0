package domain

import (
	"strings"
	"time"
)

// ============================================================
// Quotes and their per-provider lifecycle
// ============================================================

// QuoteStatus is the state of a quote as seen by one provider.
type QuoteStatus string

const (
	StatusPending   QuoteStatus = "pending"
	StatusAccepted  QuoteStatus = "accepted"
	StatusRejected  QuoteStatus = "rejected"
	StatusCompleted QuoteStatus = "completed"
)

// transitions lists the only allowed moves. Rejected and completed are final.
var transitions = map[QuoteStatus][]QuoteStatus{
	StatusPending:  {StatusAccepted, StatusRejected},
	StatusAccepted: {StatusCompleted},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to QuoteStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RequiredSource returns the status a record must be in to move to `to`.
func RequiredSource(to QuoteStatus) (QuoteStatus, bool) {
	for from, nexts := range transitions {
		for _, n := range nexts {
			if n == to {
				return from, true
			}
		}
	}
	return "", false
}

// IsFinal reports whether no transition leaves s.
func (s QuoteStatus) IsFinal() bool {
	return len(transitions[s]) == 0
}

// Tab is a listing bucket in the provider inbox.
type Tab string

const (
	TabPending   Tab = "pending"
	TabAccepted  Tab = "accepted"
	TabRejected  Tab = "rejected"
	TabCompleted Tab = "completed"
	TabAll       Tab = "all"
)

// ParseTab normalizes a tab name; unknown values mean "all".
func ParseTab(s string) Tab {
	switch t := Tab(strings.ToLower(strings.TrimSpace(s))); t {
	case TabPending, TabAccepted, TabRejected, TabCompleted:
		return t
	}
	return TabAll
}

// TabOf derives the tab a record belongs to from its status alone.
func TabOf(s QuoteStatus) Tab {
	switch s {
	case StatusPending:
		return TabPending
	case StatusAccepted:
		return TabAccepted
	case StatusRejected:
		return TabRejected
	case StatusCompleted:
		return TabCompleted
	}
	return TabAll
}

// Includes reports whether a record with status s is listed under t.
func (t Tab) Includes(s QuoteStatus) bool {
	return t == TabAll || TabOf(s) == t
}

// QuoteItem is a requested line frozen at submission.
type QuoteItem struct {
	ItemID   string   `json:"item_id"`
	Unit     ItemUnit `json:"unit"`
	Quantity float64  `json:"quantity"`
}

// Quote is a submitted request. Immutable after creation except through an
// administrative correction.
type Quote struct {
	ID            string      `json:"id"`
	ClientID      string      `json:"client_id,omitempty"`
	SubmitterName string      `json:"submitter_name,omitempty"`
	Path          CatalogPath `json:"path"`
	Description   string      `json:"description,omitempty"`
	Address       Address     `json:"address"`
	Items         []QuoteItem `json:"items"`
	CreatedAt     time.Time   `json:"created_at"`
}

// QuoteCorrection carries the fields an administrator may fix.
type QuoteCorrection struct {
	Description   *string  `json:"description,omitempty"`
	SubmitterName *string  `json:"submitter_name,omitempty"`
	Address       *Address `json:"address,omitempty"`
}

// IsEmpty reports whether nothing would change.
func (c QuoteCorrection) IsEmpty() bool {
	return c.Description == nil && c.SubmitterName == nil && c.Address == nil
}

// QuoteProvider records a quote routed to one provider.
type QuoteProvider struct {
	ID         string      `json:"id"`
	QuoteID    string      `json:"quote_id"`
	ProviderID string      `json:"provider_id"`
	Status     QuoteStatus `json:"status"`
	TotalPrice float64     `json:"total_price"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Tab is derived, never stored.
func (qp QuoteProvider) Tab() Tab {
	return TabOf(qp.Status)
}

// QuoteProviderView joins a routed quote with its request for the inbox.
type QuoteProviderView struct {
	QuoteProvider
	Quote *Quote `json:"quote,omitempty"`
	Tab   Tab    `json:"tab"`
}

// TabCounts is the badge count per inbox tab.
type TabCounts map[Tab]int

// CountTabs buckets records by derived tab; TabAll holds the total.
// Records with an unknown status are left out of every count.
func CountTabs(records []QuoteProvider) TabCounts {
	counts := TabCounts{TabPending: 0, TabAccepted: 0, TabRejected: 0, TabCompleted: 0, TabAll: 0}
	for _, r := range records {
		tab := r.Tab()
		if tab == TabAll {
			continue
		}
		counts[tab]++
		counts[TabAll]++
	}
	return counts
}
