// Package payments handles Stripe credit purchases: the package catalog,
// checkout-session creation, and webhook signature verification.
package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// CreditPackage is one purchasable bundle of generation credits.
type CreditPackage struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Credits     int    `json:"credits"`
	PriceCents  int    `json:"price"`
	Description string `json:"description"`
}

// Ordered catalog shown to users. PriceCents is USD cents.
var creditPackages = []CreditPackage{
	{ID: "starter", Name: "Starter Pack", Credits: 10, PriceCents: 999, Description: "Perfect for testing the platform"},
	{ID: "creator", Name: "Creator Pack", Credits: 50, PriceCents: 3999, Description: "Great for regular users"},
	{ID: "business", Name: "Business Pack", Credits: 200, PriceCents: 12999, Description: "Ideal for professional sellers"},
	{ID: "enterprise", Name: "Enterprise Pack", Credits: 1000, PriceCents: 49999, Description: "Built for large operations"},
}

// Packages returns the purchasable catalog.
func Packages() []CreditPackage {
	return append([]CreditPackage{}, creditPackages...)
}

// PackageByID finds a catalog entry.
func PackageByID(id string) (CreditPackage, bool) {
	for _, p := range creditPackages {
		if p.ID == id {
			return p, true
		}
	}
	return CreditPackage{}, false
}

// Options configures a Stripe client.
type Options struct {
	SecretKey     string
	WebhookSecret string
	FrontendURL   string
	BaseURL       string
	HTTPClient    *http.Client
	Tolerance     time.Duration
	Now           func() time.Time
	Logger        zerolog.Logger
}

// Client talks to the Stripe REST API with form-encoded requests.
type Client struct {
	secretKey     string
	webhookSecret string
	frontendURL   string
	baseURL       string
	client        *http.Client
	tolerance     time.Duration
	now           func() time.Time
	logger        zerolog.Logger
}

// CheckoutSession is the redirect target for a started purchase.
type CheckoutSession struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// Event is a verified webhook event.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// CompletedPurchase is extracted from a checkout.session.completed event.
type CompletedPurchase struct {
	SessionID string
	UserID    string
	PackageID string
	Credits   int
}

// New builds a Client from opts.
func New(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.stripe.com/v1"
	}
	tolerance := opts.Tolerance
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	frontendURL := strings.TrimRight(opts.FrontendURL, "/")
	if frontendURL == "" {
		frontendURL = "http://localhost:3000"
	}
	return &Client{
		secretKey:     strings.TrimSpace(opts.SecretKey),
		webhookSecret: strings.TrimSpace(opts.WebhookSecret),
		frontendURL:   frontendURL,
		baseURL:       baseURL,
		client:        client,
		tolerance:     tolerance,
		now:           now,
		logger:        opts.Logger,
	}
}

// Configured reports whether the secret key is present.
func (c *Client) Configured() bool {
	return c.secretKey != ""
}

// CreateCheckoutSession starts a Stripe Checkout purchase for packageID.
func (c *Client) CreateCheckoutSession(ctx context.Context, packageID, userID, userEmail string) (*CheckoutSession, error) {
	pkg, ok := PackageByID(packageID)
	if !ok {
		return nil, fmt.Errorf("payments: unknown package %q", packageID)
	}
	if !c.Configured() {
		return nil, fmt.Errorf("payments: stripe secret key not configured")
	}

	form := url.Values{}
	form.Set("payment_method_types[0]", "card")
	form.Set("line_items[0][price_data][currency]", "usd")
	form.Set("line_items[0][price_data][product_data][name]", pkg.Name)
	form.Set("line_items[0][price_data][product_data][description]",
		fmt.Sprintf("%d credits - %s", pkg.Credits, pkg.Description))
	form.Set("line_items[0][price_data][unit_amount]", strconv.Itoa(pkg.PriceCents))
	form.Set("line_items[0][quantity]", "1")
	form.Set("mode", "payment")
	form.Set("success_url", c.frontendURL+"/credits/success?session_id={CHECKOUT_SESSION_ID}")
	form.Set("cancel_url", c.frontendURL+"/credits/cancel")
	form.Set("customer_email", userEmail)
	form.Set("metadata[user_id]", userID)
	form.Set("metadata[package_id]", pkg.ID)
	form.Set("metadata[credits]", strconv.Itoa(pkg.Credits))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("payments: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payments: create checkout session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("payments: stripe status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var session struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("payments: decode session: %w", err)
	}

	c.logger.Info().
		Str("session_id", session.ID).
		Str("package", pkg.ID).
		Str("user_id", userID).
		Msg("payments: checkout session created")
	return &CheckoutSession{SessionID: session.ID, URL: session.URL}, nil
}

// VerifyWebhook checks the Stripe-Signature header against the raw payload
// and returns the parsed event. The v1 scheme signs `<timestamp>.<payload>`
// with HMAC-SHA256 of the webhook secret.
func (c *Client) VerifyWebhook(payload []byte, sigHeader string) (*Event, error) {
	if c.webhookSecret == "" {
		return nil, fmt.Errorf("payments: webhook secret not configured")
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return nil, fmt.Errorf("payments: malformed signature header")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("payments: invalid signature timestamp: %w", err)
	}
	age := c.now().Sub(time.Unix(ts, 0))
	if age > c.tolerance || age < -c.tolerance {
		return nil, fmt.Errorf("payments: signature timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	valid := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("payments: webhook signature mismatch")
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("payments: parse event: %w", err)
	}
	return &event, nil
}

// ExtractCompletedPurchase pulls the credit grant out of a
// checkout.session.completed event. ok=false for other event types or
// unpaid sessions.
func ExtractCompletedPurchase(event *Event) (*CompletedPurchase, bool, error) {
	if event.Type != "checkout.session.completed" {
		return nil, false, nil
	}

	var session struct {
		ID            string            `json:"id"`
		PaymentStatus string            `json:"payment_status"`
		Metadata      map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, false, fmt.Errorf("payments: parse session object: %w", err)
	}
	if session.PaymentStatus != "paid" {
		return nil, false, nil
	}

	credits, err := strconv.Atoi(session.Metadata["credits"])
	if err != nil || credits <= 0 {
		return nil, false, fmt.Errorf("payments: invalid credits metadata %q", session.Metadata["credits"])
	}
	userID := session.Metadata["user_id"]
	if userID == "" {
		return nil, false, fmt.Errorf("payments: session missing user_id metadata")
	}

	return &CompletedPurchase{
		SessionID: session.ID,
		UserID:    userID,
		PackageID: session.Metadata["package_id"],
		Credits:   credits,
	}, true, nil
}
