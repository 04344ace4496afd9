package ledger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ramadanhub/gatekeeper/pkg/ledger"
)

func TestRecord_IsProAt(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	tests := []struct {
		name   string
		record ledger.Record
		want   bool
	}{
		{
			name:   "free plan is never pro",
			record: ledger.Record{Plan: ledger.PlanFree},
			want:   false,
		},
		{
			name:   "pro with future expiry",
			record: ledger.Record{Plan: ledger.PlanPro, ProExpiresAt: &future},
			want:   true,
		},
		{
			name:   "pro with past expiry behaves as free",
			record: ledger.Record{Plan: ledger.PlanPro, ProExpiresAt: &past},
			want:   false,
		},
		{
			name:   "pro without expiry is treated as expired",
			record: ledger.Record{Plan: ledger.PlanPro},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.record.IsProAt(now))
		})
	}
}

func TestRecord_EffectivePlanAt(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	past := now.Add(-time.Minute)

	expired := ledger.Record{Plan: ledger.PlanPro, ProExpiresAt: &past}
	assert.Equal(t, ledger.PlanFree, expired.EffectivePlanAt(now))

	future := now.Add(time.Hour)
	active := ledger.Record{Plan: ledger.PlanPro, ProExpiresAt: &future}
	assert.Equal(t, ledger.PlanPro, active.EffectivePlanAt(now))
}

func TestDelta_IsZero(t *testing.T) {
	t.Parallel()

	assert.True(t, ledger.Delta{}.IsZero())
	assert.False(t, ledger.Delta{AddCredits: 1}.IsZero())
	assert.False(t, ledger.Delta{SetPlan: ledger.PlanPro}.IsZero())
}
