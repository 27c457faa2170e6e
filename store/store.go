package store

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fatcatfablab/stripe-profile-sync/stripe/db"
	"github.com/fatcatfablab/stripe-profile-sync/stripe/types"
	"github.com/fatcatfablab/stripe-profile-sync/supabase"
)

const (
	BackendSupabase = "supabase"
	BackendSQL      = "sql"
)

// Store is implemented by every profile backend.
type Store interface {
	ListUsers(ctx context.Context) ([]types.User, error)
	ActivateProfile(ctx context.Context, userID uuid.UUID, customerID, subscriptionID string, at time.Time) error
	SetStatusByCustomer(ctx context.Context, customerID string, status types.SubscriptionStatus, at time.Time) error
	ListProfiles(ctx context.Context) ([]types.Profile, error)
}

var (
	_ Store = (*db.DB)(nil)
	_ Store = (*supabase.Client)(nil)
)

type Config struct {
	Backend     string
	SupabaseURL string
	SupabaseKey string
	DBDriver    string
	DSN         string
	UsersTable  string
}

// RegisterFlags adds the store flags to fs, defaulting to the environment.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Backend, "store", getenv("PROFILE_STORE", BackendSupabase), "Profile store backend (supabase or sql)")
	fs.StringVar(&c.SupabaseURL, "supabase-url", os.Getenv("SUPABASE_URL"), "Supabase project url")
	fs.StringVar(&c.SupabaseKey, "supabase-key", os.Getenv("SUPABASE_SERVICE_ROLE_KEY"), "Supabase service role key")
	fs.StringVar(&c.DBDriver, "db-driver", getenv("DB_DRIVER", db.DriverPostgres), "Database driver (postgres, mysql or sqlite3)")
	fs.StringVar(&c.DSN, "dsn", os.Getenv("DATABASE_URL"), "Database connection string")
	fs.StringVar(&c.UsersTable, "users-table", getenv("USERS_TABLE", db.DefaultUsersTable), "Table holding the auth users")
}

// Open builds the configured backend. The returned close function releases
// its resources.
func Open(cfg Config, log *zap.Logger) (Store, func() error, error) {
	switch cfg.Backend {
	case BackendSupabase:
		if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
			return nil, nil, fmt.Errorf("supabase store needs both url and service role key")
		}
		c, err := supabase.New(cfg.SupabaseURL, cfg.SupabaseKey, log.Named("supabase"))
		if err != nil {
			return nil, nil, err
		}
		return c, func() error { return nil }, nil

	case BackendSQL:
		if cfg.DSN == "" {
			return nil, nil, fmt.Errorf("sql store needs a connection string")
		}
		d, err := db.New(db.Config{
			Driver:     cfg.DBDriver,
			DSN:        cfg.DSN,
			UsersTable: cfg.UsersTable,
		}, log.Named("db"))
		if err != nil {
			return nil, nil, err
		}
		return d, d.Close, nil
	}

	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
