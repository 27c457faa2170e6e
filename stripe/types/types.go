package types

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusPastDue   SubscriptionStatus = "past_due"
)

// ErrNoProfile is returned by the stores when an update didn't match any
// profile.
var ErrNoProfile = errors.New("no matching profile")

// User is an entry of the auth directory. Only the fields needed to map an
// email to a profile id are kept.
type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

type Profile struct {
	ID                 uuid.UUID          `json:"id"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	StripeCustomerID   string             `json:"stripe_customer_id"`
	SubscriptionID     string             `json:"subscription_id"`
	UpdatedAt          time.Time          `json:"updated_at"`
}
