// Package supabase implements the profile store on top of the Supabase REST
// (PostgREST) and GoTrue admin APIs, authenticated with the service role key.
// Profiles go through postgrest-go; the admin user listing is a plain GET
// since it needs page/per_page paging.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/supabase-community/postgrest-go"
	"go.uber.org/zap"

	"github.com/fatcatfablab/stripe-profile-sync/stripe/types"
)

const (
	usersPath     = "/auth/v1/admin/users"
	restPath      = "/rest/v1"
	profilesTable = "profiles"
	profilesPath  = restPath + "/" + profilesTable

	defaultPerPage = 1000
	defaultTimeout = 10 * time.Second

	profileColumns = "id,subscription_status,stripe_customer_id,subscription_id,updated_at"
)

type Client struct {
	baseURL    *url.URL
	serviceKey string
	httpClient *http.Client
	rest       *postgrest.Client
	perPage    int
	log        *zap.Logger
}

type Option func(*Client)

// WithHTTPClient sets the client used for the admin API.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithPageSize sets how many users are requested per admin API page.
func WithPageSize(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.perPage = n
		}
	}
}

func New(baseURL, serviceKey string, log *zap.Logger, opts ...Option) (*Client, error) {
	if serviceKey == "" {
		return nil, fmt.Errorf("no service role key given")
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid supabase url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid supabase url %q", baseURL)
	}

	rest := postgrest.NewClient(u.String()+restPath, "public", map[string]string{
		"apikey": serviceKey,
	}).SetAuthToken(serviceKey)
	if rest.ClientError != nil {
		return nil, fmt.Errorf("error creating rest client: %w", rest.ClientError)
	}

	c := &Client{
		baseURL:    u,
		serviceKey: serviceKey,
		rest:       rest,
		httpClient: &http.Client{Timeout: defaultTimeout},
		perPage:    defaultPerPage,
		log:        log,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type usersPage struct {
	Users []types.User `json:"users"`
}

// ListUsers walks every page of the admin users endpoint.
func (c *Client) ListUsers(ctx context.Context) ([]types.User, error) {
	var users []types.User
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(c.perPage))

		var p usersPage
		if err := c.get(ctx, usersPath, q, &p); err != nil {
			return nil, fmt.Errorf("error listing users (page %d): %w", page, err)
		}
		users = append(users, p.Users...)

		if len(p.Users) < c.perPage {
			break
		}
	}

	c.log.Debug("Listed users", zap.Int("count", len(users)))
	return users, nil
}

type profilePatch struct {
	SubscriptionStatus types.SubscriptionStatus `json:"subscription_status"`
	StripeCustomerID   string                   `json:"stripe_customer_id,omitempty"`
	SubscriptionID     string                   `json:"subscription_id,omitempty"`
	UpdatedAt          string                   `json:"updated_at"`
}

func (c *Client) ActivateProfile(
	ctx context.Context,
	userID uuid.UUID,
	customerID, subscriptionID string,
	at time.Time,
) error {
	err := c.patchProfiles(ctx, "id", userID.String(), profilePatch{
		SubscriptionStatus: types.StatusActive,
		StripeCustomerID:   customerID,
		SubscriptionID:     subscriptionID,
		UpdatedAt:          at.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("error activating profile %s: %w", userID, err)
	}
	return nil
}

func (c *Client) SetStatusByCustomer(
	ctx context.Context,
	customerID string,
	status types.SubscriptionStatus,
	at time.Time,
) error {
	err := c.patchProfiles(ctx, "stripe_customer_id", customerID, profilePatch{
		SubscriptionStatus: status,
		UpdatedAt:          at.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("error setting status of customer %s: %w", customerID, err)
	}
	return nil
}

func (c *Client) ListProfiles(ctx context.Context) ([]types.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var profiles []types.Profile
	_, err := c.rest.From(profilesTable).
		Select(profileColumns, "", false).
		Order("id", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&profiles)
	if err != nil {
		return nil, fmt.Errorf("error listing profiles: %w", err)
	}
	return profiles, nil
}

// patchProfiles updates every profile whose column equals value and fails
// with ErrNoProfile when none matched.
func (c *Client) patchProfiles(ctx context.Context, column, value string, patch profilePatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var updated []struct {
		ID uuid.UUID `json:"id"`
	}
	_, err := c.rest.From(profilesTable).
		Update(patch, "representation", "").
		Eq(column, value).
		ExecuteTo(&updated)
	if err != nil {
		return err
	}
	if len(updated) == 0 {
		return types.ErrNoProfile
	}
	return nil
}

// APIError is returned for any non-2xx answer of the admin API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("supabase returned %d: %s", e.StatusCode, e.Message)
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := *c.baseURL
	u.Path += path
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("error building request: %w", err)
	}
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error calling supabase: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

// errorMessage extracts the human readable part of a PostgREST or GoTrue
// error body, falling back to the raw body.
func errorMessage(raw []byte) string {
	var e struct {
		Message          string `json:"message"`
		Msg              string `json:"msg"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(raw, &e); err == nil {
		if m, ok := lo.Coalesce(e.Message, e.Msg, e.ErrorDescription); ok {
			return m
		}
	}
	return strings.TrimSpace(string(raw))
}
