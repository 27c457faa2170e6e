package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"

	"github.com/fatcatfablab/stripe-profile-sync/logger"
	"github.com/fatcatfablab/stripe-profile-sync/store"
	"github.com/fatcatfablab/stripe-profile-sync/stripe/listener"
	"github.com/fatcatfablab/stripe-profile-sync/version"
)

var (
	stripeEndpointSecret string
	listenAddr           string
	listenEndpoint       string
	tolerance            time.Duration
	ackStoreErrors       bool
	events               string
	logLevel             string
	logFormat            string
	versionflag          bool

	storeConfig store.Config
)

func init() {
	// A missing .env is fine, the environment may already be set.
	_ = godotenv.Load()

	flag.StringVar(&stripeEndpointSecret, "endpoint-secret", os.Getenv("STRIPE_WEBHOOK_SECRET"), "Stripe endpoint secret")
	flag.StringVar(&listenAddr, "listen-address", getenv("LISTEN_ADDRESS", "127.0.0.1:8081"), "Address to listen on")
	flag.StringVar(&listenEndpoint, "listen-endpoint", "/stripe_events", "Endpoint of the listener")
	flag.DurationVar(&tolerance, "tolerance", 0, "Maximum age of a signed event (0 uses the stripe-go default)")
	flag.BoolVar(&ackStoreErrors, "ack-store-errors", getenvBool("ACK_STORE_ERRORS", true), "Answer 200 even if the profile update failed")
	flag.StringVar(&events, "events", "", "Comma separated event types to apply (default all supported)")
	flag.StringVar(&logLevel, "log-level", getenv("LOG_LEVEL", "info"), "Log level")
	flag.StringVar(&logFormat, "log-format", getenv("LOG_FORMAT", "json"), "Log format (json or console)")
	flag.BoolVar(&versionflag, "version", false, "Print the version and exit")
	storeConfig.RegisterFlags(flag.CommandLine)
}

func main() {
	flag.Parse()

	if versionflag {
		version.PrintVersion()
		return
	}

	l, err := logger.New("stripe-webhook", version.String(), logLevel, logFormat)
	if err != nil {
		log.Fatalf("error creating logger: %s", err)
	}
	defer l.Sync()

	if stripeEndpointSecret == "" {
		l.Fatal("No Stripe endpoint secret given")
	}

	s, closeStore, err := store.Open(storeConfig, l)
	if err != nil {
		l.Fatal("error opening profile store", zap.String("store", storeConfig.Backend), zap.Error(err))
	}
	defer closeStore()

	lst, err := listener.New(listener.Config{
		Secret:         stripeEndpointSecret,
		ListenAddr:     listenAddr,
		Endpoint:       listenEndpoint,
		Tolerance:      tolerance,
		AckStoreErrors: ackStoreErrors,
		Events:         parseEvents(events),
	}, s, l.Named("listener"))
	if err != nil {
		l.Fatal("error creating listener", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := lst.Start(ctx); err != nil {
		l.Error("error after calling listener.Start", zap.Error(err))
	}
}

func parseEvents(s string) []stripe.EventType {
	return lo.FilterMap(strings.Split(s, ","), func(e string, _ int) (stripe.EventType, bool) {
		e = strings.TrimSpace(e)
		return stripe.EventType(e), e != ""
	})
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}
