package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ramadanhub/gatekeeper/pkg/ledger"
)

// EventState tracks an inbound event through the reconciliation pipeline.
type EventState string

const (
	StateReceived EventState = "received"
	StateVerified EventState = "verified"
	StateMapped   EventState = "mapped"
	StateApplied  EventState = "applied"
	StateRejected EventState = "rejected"
)

// GrantKind distinguishes the two grant shapes the system supports.
type GrantKind string

const (
	// GrantCredits adds a purchased credit bundle to the balance.
	// Incrementing is not naturally idempotent, so apply is guarded by the
	// dedup reservation.
	GrantCredits GrantKind = "credits"

	// GrantPro activates or extends the pro plan for a fixed duration.
	GrantPro GrantKind = "pro"
)

// Grant is the tagged union of supported grant shapes.
type Grant struct {
	Kind        GrantKind
	Credits     int64         // set when Kind is GrantCredits
	ProDuration time.Duration // set when Kind is GrantPro
}

// GrantRequest is the gateway-independent value every verified payload is
// reduced to before the ledger is touched.
type GrantRequest struct {
	Gateway    ledger.Gateway
	ExternalID string    // provider-generated idempotency key
	UserID     uuid.UUID // zero until mapping when only the email is known
	PayerEmail string    // set when the gateway identifies the payer by email
	Grant      Grant
	RawStatus  string
	Amount     int64
}

// EventRecord is the audit row persisted by dedup implementations that keep
// full event history. The (Gateway, ExternalID) pair is the idempotency key.
type EventRecord struct {
	Gateway         ledger.Gateway
	ExternalID      string
	RawStatus       string
	Amount          int64
	PayerIdentifier string
	ReceivedAt      time.Time
}

// Receipt describes how an inbound event was disposed of.
type Receipt struct {
	State          EventState
	AlreadyApplied bool // duplicate delivery acknowledged as a no-op
	Ignored        bool // authentic event that carries no grant (e.g. pending invoice)
	UserID         uuid.UUID
	Grant          *Grant
}

// UserResolver maps a payer email to an internal user id.
// Implementations return ErrUserNotFound for unknown emails and any other
// error for transient lookup failures.
type UserResolver interface {
	ResolveByEmail(ctx context.Context, email string) (uuid.UUID, error)
}

// UserResolverFunc adapts a function to the UserResolver interface.
type UserResolverFunc func(ctx context.Context, email string) (uuid.UUID, error)

func (f UserResolverFunc) ResolveByEmail(ctx context.Context, email string) (uuid.UUID, error) {
	return f(ctx, email)
}

// Bundle maps a purchasable credit bundle to its price.
// The paid amount identifies the bundle, so the webhook round trip never
// has to smuggle a bundle code through composite identifiers.
type Bundle struct {
	Code    string
	Credits int64
	Price   int64 // smallest currency unit (IDR has no minor unit)
}

// Deduplicator is the idempotency store for applied events.
//
// Reserve marks (gateway, externalID) as applied and reports whether this
// call won the reservation; false means the event was already applied and
// must be acknowledged without re-granting. Release undoes a reservation
// after a failed apply so the sender's redelivery can complete it.
type Deduplicator interface {
	Reserve(ctx context.Context, event EventRecord) (bool, error)
	Release(ctx context.Context, gateway ledger.Gateway, externalID string) error
}
