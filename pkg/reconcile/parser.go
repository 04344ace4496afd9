package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ramadanhub/gatekeeper/pkg/ledger"
)

// errEventIgnored marks authentic events that carry no grant, such as
// pending or expired invoices. The handler acknowledges them without side
// effects.
var errEventIgnored = errors.New("reconcile: event carries no grant")

// xenditPayload is the invoice-callback shape delivered by Xendit.
type xenditPayload struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	Amount     int64  `json:"amount"`
	PayerEmail string `json:"payer_email"`
}

// parseXendit reduces a Xendit invoice callback to a GrantRequest.
// The paid amount selects the credit bundle from the configured price
// table; the payer is identified by email only and resolved during mapping.
func parseXendit(body []byte, bundles []Bundle) (*GrantRequest, error) {
	var p xenditPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}
	if p.ExternalID == "" {
		return nil, fmt.Errorf("%w: missing external_id", ErrMalformedPayload)
	}

	// Only settled invoices grant anything; other statuses are authentic
	// but carry no effect.
	if p.Status != "PAID" && p.Status != "SETTLED" {
		return nil, errEventIgnored
	}

	if p.PayerEmail == "" {
		return nil, fmt.Errorf("%w: missing payer_email", ErrMalformedPayload)
	}

	bundle, ok := bundleForAmount(bundles, p.Amount)
	if !ok {
		return nil, fmt.Errorf("%w: amount %d", ErrUnknownBundle, p.Amount)
	}

	return &GrantRequest{
		Gateway:    ledger.GatewayXendit,
		ExternalID: p.ExternalID,
		PayerEmail: p.PayerEmail,
		Grant:      Grant{Kind: GrantCredits, Credits: bundle.Credits},
		RawStatus:  p.Status,
		Amount:     p.Amount,
	}, nil
}

func bundleForAmount(bundles []Bundle, amount int64) (Bundle, bool) {
	for _, b := range bundles {
		if b.Price == amount {
			return b, true
		}
	}
	return Bundle{}, false
}

// lemonSqueezyPayload is the webhook envelope delivered by LemonSqueezy.
// The user id travels as opaque checkout custom data through the whole
// checkout round trip, so no identifier parsing is needed here.
type lemonSqueezyPayload struct {
	Meta struct {
		EventName  string `json:"event_name"`
		CustomData struct {
			UserID string `json:"user_id"`
		} `json:"custom_data"`
	} `json:"meta"`
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Status string `json:"status"`
			Total  int64  `json:"total"`
		} `json:"attributes"`
	} `json:"data"`
}

// parseLemonSqueezy reduces a LemonSqueezy webhook to a pro-plan grant.
func parseLemonSqueezy(body []byte, proDuration time.Duration) (*GrantRequest, error) {
	var p lemonSqueezyPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}

	switch p.Meta.EventName {
	case "order_created", "subscription_created":
	default:
		return nil, errEventIgnored
	}

	if p.Data.ID == "" {
		return nil, fmt.Errorf("%w: missing order id", ErrMalformedPayload)
	}

	userID, err := uuid.Parse(p.Meta.CustomData.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid user id in custom data", ErrMalformedPayload)
	}

	return &GrantRequest{
		Gateway:    ledger.GatewayLemonSqueezy,
		ExternalID: p.Data.ID,
		UserID:     userID,
		Grant:      Grant{Kind: GrantPro, ProDuration: proDuration},
		RawStatus:  p.Data.Attributes.Status,
		Amount:     p.Data.Attributes.Total,
	}, nil
}
