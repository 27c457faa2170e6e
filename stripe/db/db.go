package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/fatcatfablab/stripe-profile-sync/stripe/types"
)

const (
	DriverPostgres = "postgres"
	// mysql DSNs always get parseTime and clientFoundRows set, the first to
	// scan updated_at, the second so rewriting identical values still counts
	// as a matched row.
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"

	DefaultUsersTable = "auth.users"

	// Ids missing from the checkout session keep their stored value.
	activateProfile = "UPDATE profiles SET subscription_status=?, " +
		"stripe_customer_id=COALESCE(NULLIF(?, ''), stripe_customer_id), " +
		"subscription_id=COALESCE(NULLIF(?, ''), subscription_id), " +
		"updated_at=? WHERE id=?"
	setStatusByCustomer = "UPDATE profiles SET subscription_status=?, updated_at=? " +
		"WHERE stripe_customer_id=?"
	selectProfiles = "SELECT id, subscription_status, stripe_customer_id, subscription_id, updated_at " +
		"FROM profiles ORDER BY id"
)

type Config struct {
	Driver     string
	DSN        string
	UsersTable string
}

type DB struct {
	db         *sqlx.DB
	usersTable string
	log        *zap.Logger
}

func New(cfg Config, log *zap.Logger) (*DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverPostgres
	}
	switch driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	usersTable := cfg.UsersTable
	if usersTable == "" {
		usersTable = DefaultUsersTable
	}

	dsn := cfg.DSN
	if driver == DriverMySQL {
		var err error
		if dsn, err = mysqlDSN(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("can't connect to database: %w", err)
	}

	db.SetConnMaxLifetime(1 * time.Minute)
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("can't ping the database: %w", err)
	}

	log.Info("Connected to db", zap.String("driver", driver))
	return &DB{db: db, usersTable: usersTable, log: log}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// ListUsers returns every user of the auth directory. Users without an email
// (phone or anonymous sign-ups) are returned with an empty Email.
func (d *DB) ListUsers(ctx context.Context) ([]types.User, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT id, email FROM "+d.usersTable)
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}
	defer rows.Close()

	var users []types.User
	for rows.Next() {
		var u types.User
		var email sql.NullString
		if err := rows.Scan(&u.ID, &email); err != nil {
			return nil, fmt.Errorf("error scanning user: %w", err)
		}
		u.Email = email.String
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

func (d *DB) ActivateProfile(
	ctx context.Context,
	userID uuid.UUID,
	customerID, subscriptionID string,
	at time.Time,
) error {
	r, err := d.db.ExecContext(
		ctx,
		d.db.Rebind(activateProfile),
		string(types.StatusActive),
		customerID,
		subscriptionID,
		at.UTC(),
		userID,
	)
	if err != nil {
		return fmt.Errorf("error activating profile %s: %w", userID, err)
	}
	return checkAffected(r)
}

func (d *DB) SetStatusByCustomer(
	ctx context.Context,
	customerID string,
	status types.SubscriptionStatus,
	at time.Time,
) error {
	r, err := d.db.ExecContext(
		ctx,
		d.db.Rebind(setStatusByCustomer),
		string(status),
		at.UTC(),
		customerID,
	)
	if err != nil {
		return fmt.Errorf("error setting status of customer %s: %w", customerID, err)
	}
	return checkAffected(r)
}

type profileRow struct {
	ID                 uuid.UUID      `db:"id"`
	SubscriptionStatus sql.NullString `db:"subscription_status"`
	StripeCustomerID   sql.NullString `db:"stripe_customer_id"`
	SubscriptionID     sql.NullString `db:"subscription_id"`
	UpdatedAt          sql.NullTime   `db:"updated_at"`
}

func (d *DB) ListProfiles(ctx context.Context) ([]types.Profile, error) {
	var rows []profileRow
	if err := d.db.SelectContext(ctx, &rows, selectProfiles); err != nil {
		return nil, fmt.Errorf("error listing profiles: %w", err)
	}

	profiles := make([]types.Profile, 0, len(rows))
	for _, r := range rows {
		profiles = append(profiles, types.Profile{
			ID:                 r.ID,
			SubscriptionStatus: types.SubscriptionStatus(r.SubscriptionStatus.String),
			StripeCustomerID:   r.StripeCustomerID.String,
			SubscriptionID:     r.SubscriptionID.String,
			UpdatedAt:          r.UpdatedAt.Time,
		})
	}
	return profiles, nil
}

func checkAffected(r sql.Result) error {
	n, err := r.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows: %w", err)
	}
	if n == 0 {
		return types.ErrNoProfile
	}
	return nil
}

func mysqlDSN(dsn string) (string, error) {
	c, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	c.ParseTime = true
	c.ClientFoundRows = true
	return c.FormatDSN(), nil
}
