package listener

import (
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// constructEvent checks the Stripe-Signature header against the endpoint
// secret and decodes the event. Events sent with an API version other than
// the one this stripe-go release targets are still accepted; only the fields
// read by the handlers need to be stable.
func constructEvent(payload []byte, signature, secret string, tolerance time.Duration) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
}
