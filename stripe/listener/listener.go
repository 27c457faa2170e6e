package listener

//go:generate mockgen -source=listener.go -destination=mock_store_test.go -package=listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"

	"github.com/fatcatfablab/stripe-profile-sync/stripe/types"
)

const (
	DefaultEndpoint = "/stripe_events"

	maxBodyBytes          = int64(65536)
	stripeSignatureHeader = "Stripe-Signature"

	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// SupportedEvents lists every event type the listener knows how to apply.
var SupportedEvents = []stripe.EventType{
	stripe.EventTypeCheckoutSessionCompleted,
	stripe.EventTypeCustomerSubscriptionDeleted,
	stripe.EventTypeInvoicePaymentFailed,
}

var errDecode = errors.New("error decoding event object")

type profileStore interface {
	ListUsers(ctx context.Context) ([]types.User, error)
	ActivateProfile(ctx context.Context, userID uuid.UUID, customerID, subscriptionID string, at time.Time) error
	SetStatusByCustomer(ctx context.Context, customerID string, status types.SubscriptionStatus, at time.Time) error
}

type Config struct {
	Secret     string
	ListenAddr string
	Endpoint   string
	// Tolerance bounds the age of the signature timestamp. Zero means the
	// stripe-go default.
	Tolerance time.Duration
	// AckStoreErrors makes the listener answer 200 even when updating the
	// profile failed. Stripe won't redeliver those events.
	AckStoreErrors bool
	// Events restricts which event types are applied. Empty means all of
	// SupportedEvents.
	Events []stripe.EventType
}

type Listener struct {
	cfg     Config
	db      profileStore
	log     *zap.Logger
	now     func() time.Time
	enabled mapset.Set[stripe.EventType]
}

func New(cfg Config, d profileStore, log *zap.Logger) (*Listener, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if !strings.HasPrefix(cfg.Endpoint, "/") {
		return nil, fmt.Errorf("invalid endpoint %q: must start with /", cfg.Endpoint)
	}

	supported := mapset.NewSet(SupportedEvents...)
	enabled := supported
	if len(cfg.Events) > 0 {
		enabled = mapset.NewSet(cfg.Events...)
		if unknown := enabled.Difference(supported); !unknown.IsEmpty() {
			return nil, fmt.Errorf("unsupported event types: %v", unknown.ToSlice())
		}
	}

	return &Listener{
		cfg:     cfg,
		db:      d,
		log:     log,
		now:     time.Now,
		enabled: enabled,
	}, nil
}

func (l *Listener) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("POST %s", l.cfg.Endpoint), l.webhookHandler)
	return mux
}

// Start does not return until the listener exits. Cancelling ctx shuts the
// server down gracefully.
func (l *Listener) Start(ctx context.Context) error {
	s := &http.Server{
		Addr:              l.cfg.ListenAddr,
		Handler:           l.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- s.ListenAndServe()
	}()

	l.log.Info("Listening",
		zap.String("address", l.cfg.ListenAddr),
		zap.String("endpoint", l.cfg.Endpoint),
		zap.Bool("ack_store_errors", l.cfg.AckStoreErrors),
	)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		l.log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

func (l *Listener) webhookHandler(w http.ResponseWriter, req *http.Request) {
	log := l.log.With(zap.String("request_id", uuid.NewString()))

	signature := req.Header.Get(stripeSignatureHeader)
	if signature == "" {
		log.Warn("Request without signature")
		writeText(w, http.StatusBadRequest, "No signature")
		return
	}

	req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
	payload, err := io.ReadAll(req.Body)
	if err != nil {
		l.fail(w, log, http.StatusBadRequest, fmt.Errorf("error reading request body: %w", err))
		return
	}

	event, err := constructEvent(payload, signature, l.cfg.Secret, l.cfg.Tolerance)
	if err != nil {
		l.fail(w, log, http.StatusBadRequest, err)
		return
	}

	log = log.With(zap.String("event_id", event.ID), zap.String("event_type", string(event.Type)))
	log.Info("Event received")

	if err := l.handleEvent(req.Context(), log, event); err != nil {
		switch {
		case errors.Is(err, errDecode):
			l.fail(w, log, http.StatusBadRequest, err)
			return
		case !l.cfg.AckStoreErrors:
			l.fail(w, log, http.StatusInternalServerError, err)
			return
		default:
			log.Error("Profile update failed, acknowledging anyway", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, ack{Received: true})
}

func (l *Listener) handleEvent(ctx context.Context, log *zap.Logger, event stripe.Event) error {
	if !l.enabled.Contains(event.Type) {
		log.Debug("Unhandled event type")
		return nil
	}

	if event.Data == nil {
		return fmt.Errorf("%w: event has no data", errDecode)
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		s, err := parseRawEvent[stripe.CheckoutSession](event.Data.Raw)
		if err != nil {
			return err
		}
		return l.handleCheckoutCompleted(ctx, log, s)

	case stripe.EventTypeCustomerSubscriptionDeleted:
		s, err := parseRawEvent[stripe.Subscription](event.Data.Raw)
		if err != nil {
			return err
		}
		return l.setStatus(ctx, log, customerID(s.Customer), types.StatusCancelled)

	case stripe.EventTypeInvoicePaymentFailed:
		i, err := parseRawEvent[stripe.Invoice](event.Data.Raw)
		if err != nil {
			return err
		}
		return l.setStatus(ctx, log, customerID(i.Customer), types.StatusPastDue)
	}

	return nil
}

func (l *Listener) handleCheckoutCompleted(ctx context.Context, log *zap.Logger, s *stripe.CheckoutSession) error {
	email := s.CustomerEmail
	if email == "" && s.CustomerDetails != nil {
		email = s.CustomerDetails.Email
	}
	customer := customerID(s.Customer)
	var subscriptionID string
	if s.Subscription != nil {
		subscriptionID = s.Subscription.ID
	}

	log = log.With(
		zap.String("email", email),
		zap.String("customer_id", customer),
		zap.String("subscription_id", subscriptionID),
	)
	log.Info("Payment completed")

	if email == "" {
		log.Warn("Checkout session without email, nothing to update")
		return nil
	}

	users, err := l.db.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("error looking up user: %w", err)
	}

	user, ok := lo.Find(users, func(u types.User) bool {
		return u.Email == email
	})
	if !ok {
		log.Warn("No user with that email")
		return nil
	}

	err = l.db.ActivateProfile(ctx, user.ID, customer, subscriptionID, l.now())
	switch {
	case errors.Is(err, types.ErrNoProfile):
		log.Warn("User has no profile", zap.Stringer("user_id", user.ID))
		return nil
	case err != nil:
		return err
	}

	log.Info("User activated", zap.Stringer("user_id", user.ID))
	return nil
}

func (l *Listener) setStatus(
	ctx context.Context,
	log *zap.Logger,
	customer string,
	status types.SubscriptionStatus,
) error {
	log = log.With(zap.String("customer_id", customer), zap.String("status", string(status)))

	if customer == "" {
		log.Warn("Event without customer, nothing to update")
		return nil
	}

	err := l.db.SetStatusByCustomer(ctx, customer, status, l.now())
	switch {
	case errors.Is(err, types.ErrNoProfile):
		log.Warn("No profile for customer")
		return nil
	case err != nil:
		return err
	}

	log.Info("Subscription status updated")
	return nil
}

func (l *Listener) fail(w http.ResponseWriter, log *zap.Logger, status int, err error) {
	log.Error("Webhook error", zap.Int("status", status), zap.Error(err))
	writeText(w, status, "Webhook Error: "+err.Error())
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func parseRawEvent[T any](e json.RawMessage) (*T, error) {
	var r T
	if err := json.Unmarshal(e, &r); err != nil {
		return nil, fmt.Errorf("%w: %w", errDecode, err)
	}

	return &r, nil
}

type ack struct {
	Received bool `json:"received"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}
