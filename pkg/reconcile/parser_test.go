package reconcile

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramadanhub/gatekeeper/pkg/ledger"
)

func TestParseXendit(t *testing.T) {
	t.Parallel()

	bundles := DefaultBundles()

	t.Run("settled invoice maps to credit bundle", func(t *testing.T) {
		t.Parallel()

		body := []byte(`{"id":"inv-1","external_id":"ext-abc","status":"SETTLED","amount":60000,"payer_email":"buyer@example.com"}`)

		req, err := parseXendit(body, bundles)
		require.NoError(t, err)

		assert.Equal(t, ledger.GatewayXendit, req.Gateway)
		assert.Equal(t, "ext-abc", req.ExternalID)
		assert.Equal(t, "buyer@example.com", req.PayerEmail)
		assert.Equal(t, uuid.Nil, req.UserID, "xendit identifies the payer by email only")
		assert.Equal(t, GrantCredits, req.Grant.Kind)
		assert.EqualValues(t, 150, req.Grant.Credits)
		assert.Equal(t, "SETTLED", req.RawStatus)
	})

	t.Run("paid status is accepted too", func(t *testing.T) {
		t.Parallel()

		body := []byte(`{"external_id":"ext-1","status":"PAID","amount":25000,"payer_email":"a@b.c"}`)
		req, err := parseXendit(body, bundles)
		require.NoError(t, err)
		assert.EqualValues(t, 50, req.Grant.Credits)
	})

	t.Run("pending invoice is ignored", func(t *testing.T) {
		t.Parallel()

		body := []byte(`{"external_id":"ext-1","status":"PENDING","amount":25000,"payer_email":"a@b.c"}`)
		_, err := parseXendit(body, bundles)
		assert.ErrorIs(t, err, errEventIgnored)
	})

	t.Run("unknown amount is rejected", func(t *testing.T) {
		t.Parallel()

		body := []byte(`{"external_id":"ext-1","status":"PAID","amount":123,"payer_email":"a@b.c"}`)
		_, err := parseXendit(body, bundles)
		assert.ErrorIs(t, err, ErrUnknownBundle)
	})

	t.Run("invalid json is malformed", func(t *testing.T) {
		t.Parallel()

		_, err := parseXendit([]byte(`not json`), bundles)
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})

	t.Run("missing external id is malformed", func(t *testing.T) {
		t.Parallel()

		body := []byte(`{"status":"PAID","amount":25000,"payer_email":"a@b.c"}`)
		_, err := parseXendit(body, bundles)
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})

	t.Run("missing payer email is malformed", func(t *testing.T) {
		t.Parallel()

		body := []byte(`{"external_id":"ext-1","status":"PAID","amount":25000}`)
		_, err := parseXendit(body, bundles)
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})
}

func TestParseLemonSqueezy(t *testing.T) {
	t.Parallel()

	proDuration := 720 * time.Hour

	t.Run("order created grants pro", func(t *testing.T) {
		t.Parallel()

		userID := uuid.New()
		body := fmt.Appendf(nil, `{
			"meta":{"event_name":"order_created","custom_data":{"user_id":%q}},
			"data":{"id":"order-42","attributes":{"status":"paid","total":9900}}
		}`, userID)

		req, err := parseLemonSqueezy(body, proDuration)
		require.NoError(t, err)

		assert.Equal(t, ledger.GatewayLemonSqueezy, req.Gateway)
		assert.Equal(t, "order-42", req.ExternalID)
		assert.Equal(t, userID, req.UserID)
		assert.Equal(t, GrantPro, req.Grant.Kind)
		assert.Equal(t, proDuration, req.Grant.ProDuration)
		assert.Equal(t, "paid", req.RawStatus)
		assert.EqualValues(t, 9900, req.Amount)
	})

	t.Run("subscription created grants pro", func(t *testing.T) {
		t.Parallel()

		body := fmt.Appendf(nil, `{
			"meta":{"event_name":"subscription_created","custom_data":{"user_id":%q}},
			"data":{"id":"sub-7","attributes":{"status":"active","total":9900}}
		}`, uuid.New())

		req, err := parseLemonSqueezy(body, proDuration)
		require.NoError(t, err)
		assert.Equal(t, GrantPro, req.Grant.Kind)
	})

	t.Run("other events are ignored", func(t *testing.T) {
		t.Parallel()

		body := []byte(`{"meta":{"event_name":"order_refunded","custom_data":{"user_id":"x"}},"data":{"id":"order-1"}}`)
		_, err := parseLemonSqueezy(body, proDuration)
		assert.ErrorIs(t, err, errEventIgnored)
	})

	t.Run("missing user id is malformed", func(t *testing.T) {
		t.Parallel()

		body := []byte(`{"meta":{"event_name":"order_created","custom_data":{}},"data":{"id":"order-1"}}`)
		_, err := parseLemonSqueezy(body, proDuration)
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})

	t.Run("missing order id is malformed", func(t *testing.T) {
		t.Parallel()

		body := fmt.Appendf(nil, `{"meta":{"event_name":"order_created","custom_data":{"user_id":%q}},"data":{}}`, uuid.New())
		_, err := parseLemonSqueezy(body, proDuration)
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})

	t.Run("invalid json is malformed", func(t *testing.T) {
		t.Parallel()

		_, err := parseLemonSqueezy([]byte(`{`), proDuration)
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})
}
