package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionAllowed(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusTrial, StatusActive, true},
		{StatusPending, StatusActive, true},
		{StatusCanceled, StatusActive, true},
		{StatusTrial, StatusPastDue, true},
		{StatusPending, StatusPastDue, false},
		{StatusExpired, StatusPastDue, false},
		{StatusCanceled, StatusExpired, false},
		{StatusPending, StatusExpired, false},
		{StatusActive, StatusPending, false},
		{StatusExpired, StatusPending, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.want, TransitionAllowed(tc.from, tc.to))
		})
	}
}

func TestIsActiveAtPeriodBoundary(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sub := Subscription{Status: StatusActive, PeriodEnd: now}

	assert.False(t, sub.IsActive(now))
	assert.True(t, sub.IsActive(now.Add(-time.Second)))

	sub.Status = StatusPastDue
	assert.False(t, sub.IsActive(now.Add(-time.Hour)))
}

func TestDaysUntilExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sub := Subscription{PeriodEnd: now.Add(36 * time.Hour)}
	assert.Equal(t, 1, sub.DaysUntilExpiry(now))

	sub.PeriodEnd = now.Add(-time.Hour)
	assert.Zero(t, sub.DaysUntilExpiry(now))
}

func TestCancelAndReactivate(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sub := Subscription{Status: StatusActive, PeriodEnd: now.AddDate(0, 0, 10)}

	require.NoError(t, sub.Cancel(now))
	assert.Equal(t, StatusCanceled, sub.Status)
	assert.True(t, sub.CancelAtPeriodEnd)
	require.NotNil(t, sub.CanceledAt)

	require.NoError(t, sub.Activate(now))
	assert.Equal(t, StatusActive, sub.Status)
	assert.False(t, sub.CancelAtPeriodEnd)
	assert.Nil(t, sub.CanceledAt)
}

func TestRenew(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sub := Subscription{Status: StatusExpired}

	require.ErrorIs(t, sub.Renew(now, 0), ErrInvalidPeriod)
	require.NoError(t, sub.Renew(now, 30))
	assert.Equal(t, StatusActive, sub.Status)
	assert.Equal(t, now.AddDate(0, 0, 30), sub.PeriodEnd)

	sub.Status = StatusTrial
	require.NoError(t, sub.Renew(now, 7))
	assert.Equal(t, StatusTrial, sub.Status)
}

func TestSetCancelAtPeriodEnd(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sub := Subscription{Status: StatusActive}

	sub.SetCancelAtPeriodEnd(true, now)
	require.NotNil(t, sub.CanceledAt)

	sub.SetCancelAtPeriodEnd(false, now)
	assert.Nil(t, sub.CanceledAt)
}
