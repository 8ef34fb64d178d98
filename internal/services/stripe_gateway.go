// internal/services/stripe_gateway.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/checkout/session"

	"github.com/javajoker/creative-settlement/internal/metrics"
)

type SessionState string

const (
	SessionCompleted SessionState = "completed"
	SessionFailed    SessionState = "failed"
	SessionPending   SessionState = "pending"
)

// CheckoutGateway is the hosted checkout provider.
type CheckoutGateway interface {
	Configure(secretKey string, allowedCountries []string)
	IsConfigured() bool
	CreateSession(ctx context.Context, req *CheckoutRequest) (*SessionReference, error)
	GetSessionStatus(ctx context.Context, sessionID string) (*SessionStatus, error)
}

type ShoppingItem struct {
	ProductName        string `json:"product_name" validate:"required,max=255"`
	ProductDescription string `json:"product_description,omitempty" validate:"max=1000"`
	Currency           string `json:"currency" validate:"required,len=3"`
	Quantity           int64  `json:"quantity" validate:"required,min=1"`
	PriceInCents       int64  `json:"price_in_cents" validate:"min=0"`
}

type CheckoutRequest struct {
	Buyer      string            `json:"buyer"`
	Items      []ShoppingItem    `json:"items" validate:"required,min=1,dive"`
	SuccessURL string            `json:"success_url" validate:"required,url"`
	CancelURL  string            `json:"cancel_url" validate:"required,url"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type SessionReference struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type SessionStatus struct {
	SessionID     string       `json:"session_id"`
	State         SessionState `json:"state"`
	BuyerIdentity string       `json:"buyer_identity,omitempty"`
	ContentID     string       `json:"content_id,omitempty"`
	AmountTotal   int64        `json:"amount_total"`
	Currency      string       `json:"currency"`
	FailureReason string       `json:"failure_reason,omitempty"`
}

// StripeGateway talks to Stripe Checkout. The key can be replaced at runtime
// by an admin, so each call takes a client under the read lock.
type StripeGateway struct {
	mu               sync.RWMutex
	client           *session.Client
	allowedCountries []string
}

func NewStripeGateway(secretKey string, allowedCountries []string) *StripeGateway {
	g := &StripeGateway{}
	g.Configure(secretKey, allowedCountries)
	return g
}

func (g *StripeGateway) Configure(secretKey string, allowedCountries []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	countries := make([]string, 0, len(allowedCountries))
	for _, c := range allowedCountries {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			countries = append(countries, c)
		}
	}
	g.allowedCountries = countries

	if secretKey == "" {
		g.client = nil
		return
	}
	g.client = &session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey}
}

func (g *StripeGateway) IsConfigured() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.client != nil
}

func (g *StripeGateway) CreateSession(ctx context.Context, req *CheckoutRequest) (ref *SessionReference, err error) {
	client, countries := g.snapshot()
	if client == nil {
		return nil, ErrGatewayNotConfigured
	}

	start := time.Now()
	defer func() { metrics.ObserveGateway("create_session", start, err) }()

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	if req.Buyer != "" {
		params.ClientReferenceID = stripe.String(req.Buyer)
	}
	for _, item := range req.Items {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(item.Currency)),
				UnitAmount: stripe.Int64(item.PriceInCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(item.ProductName),
					Description: optionalString(item.ProductDescription),
				},
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}
	if len(countries) > 0 {
		params.ShippingAddressCollection = &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(countries),
		}
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := client.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: create checkout session: %s", ErrGateway, stripeMessage(err))
	}

	return &SessionReference{ID: s.ID, URL: s.URL}, nil
}

func (g *StripeGateway) GetSessionStatus(ctx context.Context, sessionID string) (status *SessionStatus, err error) {
	client, _ := g.snapshot()
	if client == nil {
		return nil, ErrGatewayNotConfigured
	}

	start := time.Now()
	defer func() { metrics.ObserveGateway("get_session", start, err) }()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := client.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("%w: get checkout session %s: %s", ErrGateway, sessionID, stripeMessage(err))
	}

	return mapCheckoutSession(s), nil
}

func (g *StripeGateway) snapshot() (*session.Client, []string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.client, g.allowedCountries
}

func mapCheckoutSession(s *stripe.CheckoutSession) *SessionStatus {
	status := &SessionStatus{
		SessionID:     s.ID,
		State:         SessionPending,
		BuyerIdentity: s.ClientReferenceID,
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
	}
	if s.Metadata != nil {
		status.ContentID = s.Metadata["content_id"]
	}

	switch {
	case s.Status == stripe.CheckoutSessionStatusComplete &&
		(s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
			s.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired):
		status.State = SessionCompleted
	case s.Status == stripe.CheckoutSessionStatusExpired:
		status.State = SessionFailed
		status.FailureReason = "checkout session expired"
	default:
		status.FailureReason = fmt.Sprintf("session status %q, payment status %q", s.Status, s.PaymentStatus)
	}
	return status
}

func stripeMessage(err error) string {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return stripeErr.Msg
	}
	return err.Error()
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return stripe.String(s)
}
