package reconcile_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramadanhub/gatekeeper/pkg/ledger"
	"github.com/ramadanhub/gatekeeper/pkg/reconcile"
	"github.com/ramadanhub/gatekeeper/pkg/retry"
)

const (
	testToken  = "xendit-callback-token"
	testSecret = "ls-webhook-secret"
)

func newTestHandler(t *testing.T, store ledger.Store, resolver reconcile.UserResolver) (*reconcile.Handler, *reconcile.MemoryDeduplicator) {
	t.Helper()

	dedup := reconcile.NewMemoryDeduplicator()
	h := reconcile.NewHandler(store, dedup, resolver, reconcile.Config{
		XenditCallbackToken: testToken,
		LemonSqueezySecret:  testSecret,
		ProPassDuration:     720 * time.Hour,
	},
		reconcile.WithHandlerLogger(slog.New(slog.DiscardHandler)),
		reconcile.WithHandlerBackoff(retry.NoBackoff{}),
	)
	return h, dedup
}

func staticResolver(email string, userID uuid.UUID) reconcile.UserResolver {
	return reconcile.UserResolverFunc(func(ctx context.Context, e string) (uuid.UUID, error) {
		if e == email {
			return userID, nil
		}
		return uuid.Nil, reconcile.ErrUserNotFound
	})
}

func xenditHeaders() http.Header {
	h := http.Header{}
	h.Set(reconcile.HeaderCallbackToken, testToken)
	return h
}

func lemonSqueezyHeaders(body []byte) http.Header {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	h := http.Header{}
	h.Set(reconcile.HeaderSignature, hex.EncodeToString(mac.Sum(nil)))
	return h
}

func xenditBody(externalID string, amount int64, email string) []byte {
	return fmt.Appendf(nil, `{"external_id":%q,"status":"PAID","amount":%d,"payer_email":%q}`, externalID, amount, email)
}

func lemonSqueezyBody(orderID string, userID uuid.UUID) []byte {
	return fmt.Appendf(nil, `{
		"meta":{"event_name":"order_created","custom_data":{"user_id":%q}},
		"data":{"id":%q,"attributes":{"status":"paid","total":9900}}
	}`, userID, orderID)
}

func TestHandler_CreditBundleApplied(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	store := ledger.NewMemoryStore(0)
	h, _ := newTestHandler(t, store, staticResolver("buyer@example.com", userID))
	ctx := context.Background()

	body := xenditBody("ext-150", 60_000, "buyer@example.com")
	receipt, err := h.Handle(ctx, ledger.GatewayXendit, body, xenditHeaders())
	require.NoError(t, err)

	assert.Equal(t, reconcile.StateApplied, receipt.State)
	assert.False(t, receipt.AlreadyApplied)
	assert.Equal(t, userID, receipt.UserID)

	rec, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 150, rec.CreditBalance)
	assert.Equal(t, ledger.GatewayXendit, rec.LastGateway)
	assert.Equal(t, "PAID", rec.PaymentStatus)
}

func TestHandler_DuplicateDeliveryGrantsOnce(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	store := ledger.NewMemoryStore(0)
	h, _ := newTestHandler(t, store, staticResolver("buyer@example.com", userID))
	ctx := context.Background()

	body := xenditBody("ext-dup", 60_000, "buyer@example.com")

	receipt, err := h.Handle(ctx, ledger.GatewayXendit, body, xenditHeaders())
	require.NoError(t, err)
	assert.False(t, receipt.AlreadyApplied)

	// Redelivery of the same (gateway, externalId): acknowledged, no re-grant.
	receipt, err = h.Handle(ctx, ledger.GatewayXendit, body, xenditHeaders())
	require.NoError(t, err)
	assert.True(t, receipt.AlreadyApplied)
	assert.Equal(t, reconcile.StateApplied, receipt.State)

	rec, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 150, rec.CreditBalance, "balance must be 150, not 300")
}

func TestHandler_DistinctEventsStack(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	store := ledger.NewMemoryStore(0)
	h, _ := newTestHandler(t, store, staticResolver("buyer@example.com", userID))
	ctx := context.Background()

	_, err := h.Handle(ctx, ledger.GatewayXendit, xenditBody("ext-a", 25_000, "buyer@example.com"), xenditHeaders())
	require.NoError(t, err)
	_, err = h.Handle(ctx, ledger.GatewayXendit, xenditBody("ext-b", 25_000, "buyer@example.com"), xenditHeaders())
	require.NoError(t, err)

	rec, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 100, rec.CreditBalance)
}

func TestHandler_AuthenticationFailureMutatesNothing(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	store := ledger.NewMemoryStore(0)
	h, _ := newTestHandler(t, store, staticResolver("buyer@example.com", userID))
	ctx := context.Background()

	before, err := store.Get(ctx, userID)
	require.NoError(t, err)

	badHeaders := http.Header{}
	badHeaders.Set(reconcile.HeaderCallbackToken, "wrong-token")

	receipt, err := h.Handle(ctx, ledger.GatewayXendit, xenditBody("ext-x", 60_000, "buyer@example.com"), badHeaders)
	assert.ErrorIs(t, err, reconcile.ErrAuthenticationFailed)
	assert.Equal(t, reconcile.StateRejected, receipt.State)

	after, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, before.CreditBalance, after.CreditBalance)
}

func TestHandler_UnknownPayerIsAcknowledged(t *testing.T) {
	t.Parallel()

	store := ledger.NewMemoryStore(0)
	h, _ := newTestHandler(t, store, staticResolver("known@example.com", uuid.New()))

	receipt, err := h.Handle(context.Background(), ledger.GatewayXendit,
		xenditBody("ext-y", 60_000, "stranger@example.com"), xenditHeaders())

	// Terminal rejection, acknowledged so the sender stops retrying.
	require.NoError(t, err)
	assert.Equal(t, reconcile.StateRejected, receipt.State)
}

func TestHandler_TransientLookupFailureIsRetryable(t *testing.T) {
	t.Parallel()

	store := ledger.NewMemoryStore(0)
	flaky := reconcile.UserResolverFunc(func(ctx context.Context, email string) (uuid.UUID, error) {
		return uuid.Nil, errors.New("directory timeout")
	})
	h, _ := newTestHandler(t, store, flaky)

	_, err := h.Handle(context.Background(), ledger.GatewayXendit,
		xenditBody("ext-z", 60_000, "buyer@example.com"), xenditHeaders())

	assert.ErrorIs(t, err, reconcile.ErrMappingUnavailable)
}

func TestHandler_ProGrant(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	store := ledger.NewMemoryStore(0)
	h, _ := newTestHandler(t, store, staticResolver("", uuid.Nil))
	ctx := context.Background()

	body := lemonSqueezyBody("order-1", userID)
	receipt, err := h.Handle(ctx, ledger.GatewayLemonSqueezy, body, lemonSqueezyHeaders(body))
	require.NoError(t, err)
	assert.Equal(t, reconcile.StateApplied, receipt.State)

	rec, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, ledger.PlanPro, rec.Plan)
	require.NotNil(t, rec.ProExpiresAt)
	assert.WithinDuration(t, time.Now().UTC().Add(720*time.Hour), *rec.ProExpiresAt, time.Minute)
	assert.Equal(t, ledger.GatewayLemonSqueezy, rec.LastGateway)

	// Redelivery does not extend the expiry again.
	firstExpiry := *rec.ProExpiresAt
	receipt, err = h.Handle(ctx, ledger.GatewayLemonSqueezy, body, lemonSqueezyHeaders(body))
	require.NoError(t, err)
	assert.True(t, receipt.AlreadyApplied)

	rec, err = store.Get(ctx, userID)
	require.NoError(t, err)
	assert.True(t, rec.ProExpiresAt.Equal(firstExpiry))
}

func TestHandler_ProRepurchaseExtendsFromCurrentExpiry(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	store := ledger.NewMemoryStore(0)
	h, _ := newTestHandler(t, store, staticResolver("", uuid.Nil))
	ctx := context.Background()

	first := lemonSqueezyBody("order-1", userID)
	_, err := h.Handle(ctx, ledger.GatewayLemonSqueezy, first, lemonSqueezyHeaders(first))
	require.NoError(t, err)

	second := lemonSqueezyBody("order-2", userID)
	_, err = h.Handle(ctx, ledger.GatewayLemonSqueezy, second, lemonSqueezyHeaders(second))
	require.NoError(t, err)

	rec, err := store.Get(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, rec.ProExpiresAt)
	assert.WithinDuration(t, time.Now().UTC().Add(2*720*time.Hour), *rec.ProExpiresAt, time.Minute)
}

func TestHandler_IgnoredEventIsAcknowledged(t *testing.T) {
	t.Parallel()

	store := ledger.NewMemoryStore(0)
	h, _ := newTestHandler(t, store, staticResolver("", uuid.Nil))

	body := []byte(`{"external_id":"ext-1","status":"PENDING","amount":25000,"payer_email":"a@b.c"}`)
	receipt, err := h.Handle(context.Background(), ledger.GatewayXendit, body, xenditHeaders())

	require.NoError(t, err)
	assert.True(t, receipt.Ignored)
	assert.Equal(t, reconcile.StateVerified, receipt.State)
}

// failingOnceStore fails the first ApplyDelta to exercise the retryable
// apply path and the dedup reservation release.
type failingOnceStore struct {
	*ledger.MemoryStore
	failed atomic.Bool
}

func (s *failingOnceStore) ApplyDelta(ctx context.Context, userID uuid.UUID, delta ledger.Delta, expectedVersion int64) (*ledger.Record, error) {
	if s.failed.CompareAndSwap(false, true) {
		return nil, errors.Join(ledger.ErrWriteFailed, errors.New("connection reset"))
	}
	return s.MemoryStore.ApplyDelta(ctx, userID, delta, expectedVersion)
}

func TestHandler_ApplyFailureIsRetryableAndRedeliveryCompletes(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	store := &failingOnceStore{MemoryStore: ledger.NewMemoryStore(0)}
	h, _ := newTestHandler(t, store, staticResolver("buyer@example.com", userID))
	ctx := context.Background()

	body := xenditBody("ext-retry", 60_000, "buyer@example.com")

	_, err := h.Handle(ctx, ledger.GatewayXendit, body, xenditHeaders())
	assert.ErrorIs(t, err, reconcile.ErrApplyFailed)

	// The sender retries; the reservation was released, so the grant lands.
	receipt, err := h.Handle(ctx, ledger.GatewayXendit, body, xenditHeaders())
	require.NoError(t, err)
	assert.Equal(t, reconcile.StateApplied, receipt.State)
	assert.False(t, receipt.AlreadyApplied)

	rec, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 150, rec.CreditBalance)
}

// recordingApplier captures the event and delegates to an inner applier so
// tests can observe that the handler funnels reservation and apply through a
// single atomic step.
type recordingApplier struct {
	inner  reconcile.Applier
	events []reconcile.EventRecord
}

func (a *recordingApplier) ApplyOnce(ctx context.Context, event reconcile.EventRecord, apply func(ctx context.Context, store ledger.Store) error) (bool, error) {
	a.events = append(a.events, event)
	return a.inner.ApplyOnce(ctx, event, apply)
}

func TestHandler_GrantRidesInsideTheApplier(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	store := ledger.NewMemoryStore(0)
	applier := &recordingApplier{inner: reconcile.NewGuardedApplier(reconcile.NewMemoryDeduplicator(), store)}

	h := reconcile.NewHandler(store, nil, staticResolver("buyer@example.com", userID), reconcile.Config{
		XenditCallbackToken: testToken,
	},
		reconcile.WithHandlerLogger(slog.New(slog.DiscardHandler)),
		reconcile.WithHandlerBackoff(retry.NoBackoff{}),
		reconcile.WithApplier(applier),
	)
	ctx := context.Background()

	body := xenditBody("ext-atomic", 60_000, "buyer@example.com")
	receipt, err := h.Handle(ctx, ledger.GatewayXendit, body, xenditHeaders())
	require.NoError(t, err)
	assert.Equal(t, reconcile.StateApplied, receipt.State)

	// One delivery, one atomic reservation+apply unit.
	require.Len(t, applier.events, 1)
	assert.Equal(t, "ext-atomic", applier.events[0].ExternalID)

	rec, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 150, rec.CreditBalance)

	// A duplicate delivery is decided by the applier, not by the handler.
	receipt, err = h.Handle(ctx, ledger.GatewayXendit, body, xenditHeaders())
	require.NoError(t, err)
	assert.True(t, receipt.AlreadyApplied)
	require.Len(t, applier.events, 2)
}

func TestHandler_UnsupportedGateway(t *testing.T) {
	t.Parallel()

	store := ledger.NewMemoryStore(0)
	h, _ := newTestHandler(t, store, staticResolver("", uuid.Nil))

	_, err := h.Handle(context.Background(), ledger.Gateway("paypal"), []byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, reconcile.ErrMalformedPayload)
}
