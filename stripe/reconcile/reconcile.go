package reconcile

import (
	"context"
	"errors"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"

	"github.com/fatcatfablab/stripe-profile-sync/stripe/types"
)

type subscriptionLister interface {
	// LatestStatus returns the status of the customer's most recent
	// subscription. ok is false when the customer has none.
	LatestStatus(ctx context.Context, customerID string) (status stripe.SubscriptionStatus, ok bool, err error)
}

type statusUpdater interface {
	SetStatusByCustomer(ctx context.Context, customerID string, status types.SubscriptionStatus, at time.Time) error
}

type Result struct {
	Checked   int
	Updated   int
	Unchanged int
	Skipped   int
	Failed    int
}

type Reconciler struct {
	stripe subscriptionLister
	store  statusUpdater
	log    *zap.Logger
	dryRun bool
	now    func() time.Time
}

func New(s subscriptionLister, u statusUpdater, log *zap.Logger, dryRun bool) *Reconciler {
	return &Reconciler{stripe: s, store: u, log: log, dryRun: dryRun, now: time.Now}
}

// Reconcile brings every profile linked to a Stripe customer in line with the
// customer's latest subscription. Failures on a single customer don't stop
// the run; the last one is returned.
func (r *Reconciler) Reconcile(ctx context.Context, profiles []types.Profile) (Result, error) {
	var res Result
	var reterror error

	linked := lo.Filter(profiles, func(p types.Profile, _ int) bool {
		return p.StripeCustomerID != ""
	})

	// Several profiles may point to the same customer. The update is keyed on
	// the customer id, so each customer is looked up once and written when any
	// of its profiles drifted.
	byCustomer := lo.GroupBy(linked, func(p types.Profile) string {
		return p.StripeCustomerID
	})
	customers := lo.Uniq(lo.Map(linked, func(p types.Profile, _ int) string {
		return p.StripeCustomerID
	}))

	for _, customerID := range customers {
		res.Checked++

		current := mapset.NewThreadUnsafeSet(lo.Map(byCustomer[customerID], func(p types.Profile, _ int) types.SubscriptionStatus {
			return p.SubscriptionStatus
		})...)
		log := r.log.With(
			zap.String("customer_id", customerID),
			zap.Any("current", current.ToSlice()),
		)

		stripeStatus, ok, err := r.stripe.LatestStatus(ctx, customerID)
		if err != nil {
			log.Error("error fetching subscriptions", zap.Error(err))
			res.Failed++
			reterror = err
			continue
		}
		if !ok {
			log.Debug("Customer has no subscriptions")
			res.Skipped++
			continue
		}

		want, ok := ProfileStatus(stripeStatus)
		if !ok {
			log.Debug("Subscription status not mapped", zap.String("stripe_status", string(stripeStatus)))
			res.Skipped++
			continue
		}
		if current.Cardinality() == 1 && current.Contains(want) {
			res.Unchanged++
			continue
		}

		msg := "Updating profile status"
		if r.dryRun {
			msg = "[DRY-RUN] " + msg
		}
		log.Info(msg, zap.String("wanted", string(want)))
		if r.dryRun {
			res.Updated++
			continue
		}

		err = r.store.SetStatusByCustomer(ctx, customerID, want, r.now())
		if err != nil && !errors.Is(err, types.ErrNoProfile) {
			log.Error("error updating profile", zap.Error(err))
			res.Failed++
			reterror = err
			continue
		}
		res.Updated++
	}

	return res, reterror
}

// ProfileStatus maps a Stripe subscription status to the profile status it
// implies. Statuses with no profile counterpart (incomplete, paused) return
// false.
func ProfileStatus(s stripe.SubscriptionStatus) (types.SubscriptionStatus, bool) {
	switch s {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return types.StatusActive, true
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return types.StatusPastDue, true
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return types.StatusCancelled, true
	}
	return "", false
}
