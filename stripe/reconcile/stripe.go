package reconcile

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeSubscriptions looks subscriptions up through the Stripe API.
type StripeSubscriptions struct {
	api *client.API
}

func NewStripeSubscriptions(secretKey string) *StripeSubscriptions {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeSubscriptions{api: api}
}

func (s *StripeSubscriptions) LatestStatus(ctx context.Context, customerID string) (stripe.SubscriptionStatus, bool, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx

	var latest *stripe.Subscription
	it := s.api.Subscriptions.List(params)
	for it.Next() {
		sub := it.Subscription()
		if latest == nil || sub.Created > latest.Created {
			latest = sub
		}
	}
	if err := it.Err(); err != nil {
		return "", false, fmt.Errorf("error listing subscriptions of %s: %w", customerID, err)
	}

	if latest == nil {
		return "", false, nil
	}
	return latest.Status, true, nil
}
