package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fatcatfablab/stripe-profile-sync/logger"
	"github.com/fatcatfablab/stripe-profile-sync/store"
	"github.com/fatcatfablab/stripe-profile-sync/stripe/reconcile"
	"github.com/fatcatfablab/stripe-profile-sync/version"
)

var (
	stripeKey   string
	dryRun      bool
	logLevel    string
	logFormat   string
	versionflag bool

	storeConfig store.Config
)

func init() {
	_ = godotenv.Load()

	flag.StringVar(&stripeKey, "stripe-key", os.Getenv("STRIPE_SECRET_KEY"), "Stripe secret key")
	flag.BoolVar(&dryRun, "dry-run", false, "Log the changes without writing them")
	flag.StringVar(&logLevel, "log-level", os.Getenv("LOG_LEVEL"), "Log level")
	flag.StringVar(&logFormat, "log-format", "console", "Log format (json or console)")
	flag.BoolVar(&versionflag, "version", false, "Print the version and exit")
	storeConfig.RegisterFlags(flag.CommandLine)
}

func main() {
	flag.Parse()

	if versionflag {
		version.PrintVersion()
		return
	}

	l, err := logger.New("stripe-reconcile", version.String(), logLevel, logFormat)
	if err != nil {
		log.Fatalf("error creating logger: %s", err)
	}
	defer l.Sync()

	if stripeKey == "" {
		l.Fatal("No Stripe secret key given")
	}

	s, closeStore, err := store.Open(storeConfig, l)
	if err != nil {
		l.Fatal("error opening profile store", zap.Error(err))
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	profiles, err := s.ListProfiles(ctx)
	if err != nil {
		l.Fatal("error listing profiles", zap.Error(err))
	}

	r := reconcile.New(reconcile.NewStripeSubscriptions(stripeKey), s, l, dryRun)
	res, err := r.Reconcile(ctx, profiles)
	l.Info("Reconciliation finished",
		zap.Bool("dry_run", dryRun),
		zap.Int("checked", res.Checked),
		zap.Int("updated", res.Updated),
		zap.Int("unchanged", res.Unchanged),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	if err != nil {
		l.Error("Reconciliation had failures", zap.Error(err))
		os.Exit(1)
	}
}
