package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/fatcatfablab/stripe-profile-sync/store"
	"github.com/fatcatfablab/stripe-profile-sync/stripe/types"
)

const noStatus = "(none)"

var storeConfig store.Config

func init() {
	_ = godotenv.Load()
	storeConfig.RegisterFlags(flag.CommandLine)
}

func main() {
	flag.Parse()

	s, closeStore, err := store.Open(storeConfig, zap.NewNop())
	if err != nil {
		log.Fatalf("error opening profile store: %s", err)
	}
	defer closeStore()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	profiles, err := s.ListProfiles(ctx)
	if err != nil {
		log.Fatalf("error listing profiles: %s", err)
	}

	counts := lo.CountValuesBy(profiles, func(p types.Profile) string {
		if p.SubscriptionStatus == "" {
			return noStatus
		}
		return string(p.SubscriptionStatus)
	})
	linked := lo.CountBy(profiles, func(p types.Profile) bool {
		return p.StripeCustomerID != ""
	})

	fmt.Printf("Total profiles:       %03d\n", len(profiles))
	fmt.Printf("Linked to Stripe:     %03d\n", linked)
	statuses := lo.Keys(counts)
	slices.Sort(statuses)
	for _, status := range statuses {
		fmt.Printf("%-21s %03d\n", status+":", counts[status])
	}
}
