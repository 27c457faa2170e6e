package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap/zaptest"

	"github.com/fatcatfablab/stripe-profile-sync/stripe/types"
)

type mockStripe struct {
	statuses map[string]stripe.SubscriptionStatus
	failing  map[string]bool
	calls    map[string]int
}

func (m *mockStripe) LatestStatus(_ context.Context, customerID string) (stripe.SubscriptionStatus, bool, error) {
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[customerID]++
	if m.failing[customerID] {
		return "", false, errors.New("stripe unavailable")
	}
	s, ok := m.statuses[customerID]
	return s, ok, nil
}

type mockUpdater struct {
	t       *testing.T
	updates map[string]types.SubscriptionStatus
	err     error
}

func (u *mockUpdater) SetStatusByCustomer(_ context.Context, customerID string, status types.SubscriptionStatus, _ time.Time) error {
	if u.updates == nil {
		u.updates = make(map[string]types.SubscriptionStatus)
	}
	if _, ok := u.updates[customerID]; ok {
		u.t.Errorf("customer %s updated twice", customerID)
	}
	u.updates[customerID] = status
	return u.err
}

func profile(customerID string, status types.SubscriptionStatus) types.Profile {
	return types.Profile{ID: uuid.New(), StripeCustomerID: customerID, SubscriptionStatus: status}
}

func TestReconcile(t *testing.T) {
	for _, tt := range []struct {
		name        string
		profiles    []types.Profile
		statuses    map[string]stripe.SubscriptionStatus
		failing     map[string]bool
		updateErr   error
		dryRun      bool
		wantUpdates map[string]types.SubscriptionStatus
		wantResult  Result
		shouldFail  bool
	}{
		{
			name:       "Nothing to do",
			profiles:   []types.Profile{profile("cus_1", types.StatusActive)},
			statuses:   map[string]stripe.SubscriptionStatus{"cus_1": stripe.SubscriptionStatusActive},
			wantResult: Result{Checked: 1, Unchanged: 1},
		},
		{
			name:       "Profiles without customer are ignored",
			profiles:   []types.Profile{profile("", ""), profile("", types.StatusActive)},
			wantResult: Result{},
		},
		{
			name: "Missed cancellation gets applied",
			profiles: []types.Profile{
				profile("cus_1", types.StatusActive),
				profile("cus_2", types.StatusActive),
			},
			statuses: map[string]stripe.SubscriptionStatus{
				"cus_1": stripe.SubscriptionStatusCanceled,
				"cus_2": stripe.SubscriptionStatusTrialing,
			},
			wantUpdates: map[string]types.SubscriptionStatus{"cus_1": types.StatusCancelled},
			wantResult:  Result{Checked: 2, Updated: 1, Unchanged: 1},
		},
		{
			name: "Shared customer handled once",
			profiles: []types.Profile{
				profile("cus_1", types.StatusActive),
				profile("cus_1", types.StatusActive),
			},
			statuses:    map[string]stripe.SubscriptionStatus{"cus_1": stripe.SubscriptionStatusUnpaid},
			wantUpdates: map[string]types.SubscriptionStatus{"cus_1": types.StatusPastDue},
			wantResult:  Result{Checked: 1, Updated: 1},
		},
		{
			name: "Shared customer with a drifted profile",
			profiles: []types.Profile{
				profile("cus_1", types.StatusActive),
				profile("cus_1", types.StatusPastDue),
			},
			statuses:    map[string]stripe.SubscriptionStatus{"cus_1": stripe.SubscriptionStatusActive},
			wantUpdates: map[string]types.SubscriptionStatus{"cus_1": types.StatusActive},
			wantResult:  Result{Checked: 1, Updated: 1},
		},
		{
			name: "Unmapped and missing subscriptions are skipped",
			profiles: []types.Profile{
				profile("cus_1", types.StatusActive),
				profile("cus_2", types.StatusActive),
			},
			statuses:   map[string]stripe.SubscriptionStatus{"cus_1": stripe.SubscriptionStatusPaused},
			wantResult: Result{Checked: 2, Skipped: 2},
		},
		{
			name:       "Dry run doesn't write",
			profiles:   []types.Profile{profile("cus_1", types.StatusPastDue)},
			statuses:   map[string]stripe.SubscriptionStatus{"cus_1": stripe.SubscriptionStatusActive},
			dryRun:     true,
			wantResult: Result{Checked: 1, Updated: 1},
		},
		{
			name: "Stripe failure doesn't stop the run",
			profiles: []types.Profile{
				profile("cus_1", types.StatusActive),
				profile("cus_2", types.StatusActive),
			},
			statuses:    map[string]stripe.SubscriptionStatus{"cus_2": stripe.SubscriptionStatusPastDue},
			failing:     map[string]bool{"cus_1": true},
			wantUpdates: map[string]types.SubscriptionStatus{"cus_2": types.StatusPastDue},
			wantResult:  Result{Checked: 2, Updated: 1, Failed: 1},
			shouldFail:  true,
		},
		{
			name:        "Store failure is reported",
			profiles:    []types.Profile{profile("cus_1", types.StatusActive)},
			statuses:    map[string]stripe.SubscriptionStatus{"cus_1": stripe.SubscriptionStatusCanceled},
			updateErr:   errors.New("store unavailable"),
			wantUpdates: map[string]types.SubscriptionStatus{"cus_1": types.StatusCancelled},
			wantResult:  Result{Checked: 1, Failed: 1},
			shouldFail:  true,
		},
		{
			name:        "Profile gone meanwhile",
			profiles:    []types.Profile{profile("cus_1", types.StatusActive)},
			statuses:    map[string]stripe.SubscriptionStatus{"cus_1": stripe.SubscriptionStatusCanceled},
			updateErr:   types.ErrNoProfile,
			wantUpdates: map[string]types.SubscriptionStatus{"cus_1": types.StatusCancelled},
			wantResult:  Result{Checked: 1, Updated: 1},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			s := &mockStripe{statuses: tt.statuses, failing: tt.failing}
			u := &mockUpdater{t: t, err: tt.updateErr}

			res, err := New(s, u, zaptest.NewLogger(t), tt.dryRun).Reconcile(context.Background(), tt.profiles)
			if (err != nil) != tt.shouldFail {
				t.Errorf("unexpected error: %v", err)
			}
			if res != tt.wantResult {
				t.Errorf("unexpected result: got %+v want %+v", res, tt.wantResult)
			}
			if len(u.updates) != len(tt.wantUpdates) {
				t.Fatalf("unexpected updates: got %v want %v", u.updates, tt.wantUpdates)
			}
			for c, status := range tt.wantUpdates {
				if u.updates[c] != status {
					t.Errorf("customer %s: got %q want %q", c, u.updates[c], status)
				}
			}
			for c, n := range s.calls {
				if n != 1 {
					t.Errorf("customer %s looked up %d times", c, n)
				}
			}
		})
	}
}

func TestProfileStatus(t *testing.T) {
	for _, tt := range []struct {
		in   stripe.SubscriptionStatus
		want types.SubscriptionStatus
		ok   bool
	}{
		{stripe.SubscriptionStatusActive, types.StatusActive, true},
		{stripe.SubscriptionStatusTrialing, types.StatusActive, true},
		{stripe.SubscriptionStatusPastDue, types.StatusPastDue, true},
		{stripe.SubscriptionStatusUnpaid, types.StatusPastDue, true},
		{stripe.SubscriptionStatusCanceled, types.StatusCancelled, true},
		{stripe.SubscriptionStatusIncompleteExpired, types.StatusCancelled, true},
		{stripe.SubscriptionStatusIncomplete, "", false},
		{stripe.SubscriptionStatusPaused, "", false},
	} {
		t.Run(string(tt.in), func(t *testing.T) {
			got, ok := ProfileStatus(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("got (%q, %v) want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}
