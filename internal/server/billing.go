package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"curabot/internal/billing"
)

func registerBilling(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "billing-checkout",
		Method:      http.MethodPost,
		Path:        "/billing/checkout",
		Summary:     "Open a subscription checkout session",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body struct {
			PriceID string `json:"priceId" minLength:"1"`
		} `json:"body"`
	}) (*struct {
		Body struct {
			SessionID string `json:"sessionId"`
			URL       string `json:"url"`
		} `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sessionID, url, err := cfg.Billing.Checkout(ctx, userID, input.Body.PriceID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				SessionID string `json:"sessionId"`
				URL       string `json:"url"`
			} `json:"body"`
		}{}
		out.Body.SessionID = sessionID
		out.Body.URL = url
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "billing-webhook",
		Method:      http.MethodPost,
		Path:        "/billing/webhook",
		Summary:     "Payment provider webhook",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Signature string `header:"Stripe-Signature"`
		RawBody   []byte
	}) (*struct {
		Body struct {
			Received bool `json:"received"`
		} `json:"body"`
	}, error) {
		if err := cfg.Billing.HandleWebhook(ctx, input.RawBody, input.Signature); err != nil {
			if errors.Is(err, billing.ErrBadSignature) {
				return nil, newAPIError(http.StatusBadRequest, "invalid signature")
			}
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Received bool `json:"received"`
			} `json:"body"`
		}{}
		out.Body.Received = true
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "billing-subscription",
		Method:      http.MethodGet,
		Path:        "/billing/subscription",
		Summary:     "Current subscription",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body billing.Subscription `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sub, err := cfg.Billing.GetSubscription(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body billing.Subscription `json:"body"`
		}{Body: sub}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "billing-cancel",
		Method:      http.MethodDelete,
		Path:        "/billing/subscription",
		Summary:     "Cancel subscription",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body billing.Subscription `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sub, err := cfg.Billing.CancelSubscription(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body billing.Subscription `json:"body"`
		}{Body: sub}, nil
	})
}
