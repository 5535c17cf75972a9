// Package billing wraps the payment provider: subscription checkout,
// webhook-driven subscription state, and cancellation.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"curabot/internal/domain"
	"curabot/internal/repo"
)

type Service struct {
	Repo          repo.Repo
	Log           *logrus.Logger
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

func New(apiKey, webhookSecret, successURL, cancelURL string, r repo.Repo, log *logrus.Logger) Service {
	stripe.Key = apiKey
	return Service{
		Repo:          r,
		Log:           log,
		WebhookSecret: webhookSecret,
		SuccessURL:    successURL,
		CancelURL:     cancelURL,
	}
}

// Checkout opens a subscription checkout session for the user, creating a
// provider customer on first purchase.
func (s Service) Checkout(ctx context.Context, userID, priceID string) (sessionID, url string, err error) {
	u, err := s.Repo.EnsureUser(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if u.StripeCustomerID == "" {
		cust, err := customer.New(&stripe.CustomerParams{
			Metadata: map[string]string{"userId": userID},
		})
		if err != nil {
			return "", "", fmt.Errorf("create customer: %w", err)
		}
		if err := s.Repo.SetStripeCustomer(ctx, userID, cust.ID); err != nil {
			return "", "", err
		}
		u.StripeCustomerID = cust.ID
	}
	sess, err := session.New(&stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(u.StripeCustomerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(s.SuccessURL),
		CancelURL:          stripe.String(s.CancelURL),
		ClientReferenceID:  stripe.String(userID),
	})
	if err != nil {
		return "", "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.ID, sess.URL, nil
}

// ErrBadSignature marks a webhook payload that failed verification.
var ErrBadSignature = errors.New("invalid webhook signature")

// HandleWebhook verifies the payload signature and applies the event to
// the local subscription state. Unhandled event types are acknowledged and
// ignored.
func (s Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	log := s.Log.WithField("event", event.Type)
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess struct {
			Customer          string `json:"customer"`
			Subscription      string `json:"subscription"`
			ClientReferenceID string `json:"client_reference_id"`
		}
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("checkout session payload: %w", err)
		}
		userID := sess.ClientReferenceID
		if userID == "" {
			u, err := s.Repo.GetUserByStripeCustomer(ctx, sess.Customer)
			if err != nil {
				log.WithError(err).Warn("checkout completed for unknown customer")
				return nil
			}
			userID = u.UserID
		}
		if _, err := s.Repo.EnsureUser(ctx, userID); err != nil {
			return err
		}
		if sess.Customer != "" {
			if err := s.Repo.SetStripeCustomer(ctx, userID, sess.Customer); err != nil {
				return err
			}
		}
		return s.Repo.SetSubscription(ctx, userID, sess.Subscription, "", "active")
	case stripe.EventTypeInvoicePaymentSucceeded:
		var inv struct {
			Customer string `json:"customer"`
			Lines    struct {
				Data []struct {
					Subscription string `json:"subscription"`
					Price        struct {
						ID string `json:"id"`
					} `json:"price"`
				} `json:"data"`
			} `json:"lines"`
		}
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return fmt.Errorf("invoice payload: %w", err)
		}
		u, err := s.Repo.GetUserByStripeCustomer(ctx, inv.Customer)
		if err != nil {
			log.WithError(err).Warn("payment for unknown customer")
			return nil
		}
		subID, priceID := u.SubscriptionID, u.PriceID
		if len(inv.Lines.Data) > 0 {
			if inv.Lines.Data[0].Subscription != "" {
				subID = inv.Lines.Data[0].Subscription
			}
			if inv.Lines.Data[0].Price.ID != "" {
				priceID = inv.Lines.Data[0].Price.ID
			}
		}
		return s.Repo.SetSubscription(ctx, u.UserID, subID, priceID, "active")
	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub struct {
			Customer string `json:"customer"`
		}
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("subscription payload: %w", err)
		}
		u, err := s.Repo.GetUserByStripeCustomer(ctx, sub.Customer)
		if err != nil {
			log.WithError(err).Warn("cancellation for unknown customer")
			return nil
		}
		return s.Repo.ClearSubscription(ctx, u.UserID)
	default:
		log.Debug("ignoring webhook event")
		return nil
	}
}

// Subscription is the live provider view joined with the local user row.
type Subscription struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	PriceID          string `json:"priceId,omitempty"`
	CurrentPeriodEnd int64  `json:"currentPeriodEnd,omitempty"`
	CancelAtEnd      bool   `json:"cancelAtPeriodEnd"`
}

// GetSubscription looks the user's subscription up at the provider.
func (s Service) GetSubscription(ctx context.Context, userID string) (Subscription, error) {
	u, err := s.userWithSubscription(ctx, userID)
	if err != nil {
		return Subscription{}, err
	}
	sub, err := subscription.Get(u.SubscriptionID, nil)
	if err != nil {
		return Subscription{}, fmt.Errorf("fetch subscription: %w", err)
	}
	return fromStripe(sub), nil
}

// CancelSubscription cancels at the provider and clears the local state.
func (s Service) CancelSubscription(ctx context.Context, userID string) (Subscription, error) {
	u, err := s.userWithSubscription(ctx, userID)
	if err != nil {
		return Subscription{}, err
	}
	sub, err := subscription.Cancel(u.SubscriptionID, nil)
	if err != nil {
		return Subscription{}, fmt.Errorf("cancel subscription: %w", err)
	}
	if err := s.Repo.ClearSubscription(ctx, userID); err != nil {
		return Subscription{}, err
	}
	return fromStripe(sub), nil
}

func (s Service) userWithSubscription(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Repo.GetUser(ctx, userID)
	if err != nil {
		return u, err
	}
	if u.SubscriptionID == "" {
		return u, repo.ErrNotFound
	}
	return u, nil
}

func fromStripe(sub *stripe.Subscription) Subscription {
	out := Subscription{
		ID:          sub.ID,
		Status:      string(sub.Status),
		CancelAtEnd: sub.CancelAtPeriodEnd,
	}
	if len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		out.PriceID = sub.Items.Data[0].Price.ID
		out.CurrentPeriodEnd = sub.Items.Data[0].CurrentPeriodEnd
	}
	return out
}
