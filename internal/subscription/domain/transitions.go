package domain

import "time"

// allowedSources lists the states each target can be entered from.
var allowedSources = map[Status][]Status{
	StatusActive:   {StatusTrial, StatusPending, StatusActive, StatusPastDue, StatusExpired, StatusCanceled},
	StatusPastDue:  {StatusActive, StatusPastDue, StatusTrial},
	StatusCanceled: {StatusTrial, StatusPending, StatusActive, StatusPastDue, StatusExpired, StatusCanceled},
	StatusExpired:  {StatusTrial, StatusActive, StatusPastDue, StatusExpired},
	StatusPending:  {StatusExpired, StatusCanceled, StatusPending},
}

func TransitionAllowed(current, target Status) bool {
	for _, source := range allowedSources[target] {
		if source == current {
			return true
		}
	}
	return false
}

// Activate makes the subscription active and clears cancellation markers.
func (s *Subscription) Activate(now time.Time) error {
	if !TransitionAllowed(s.Status, StatusActive) {
		return ErrInvalidTransition
	}
	s.Status = StatusActive
	s.CancelAtPeriodEnd = false
	s.CanceledAt = nil
	s.UpdatedAt = now
	return nil
}

func (s *Subscription) MarkPastDue(now time.Time) error {
	if !TransitionAllowed(s.Status, StatusPastDue) {
		return ErrInvalidTransition
	}
	s.Status = StatusPastDue
	s.UpdatedAt = now
	return nil
}

func (s *Subscription) MarkCanceled(now time.Time) error {
	if !TransitionAllowed(s.Status, StatusCanceled) {
		return ErrInvalidTransition
	}
	s.Status = StatusCanceled
	if s.CanceledAt == nil {
		s.CanceledAt = &now
	}
	s.UpdatedAt = now
	return nil
}

func (s *Subscription) MarkExpired(now time.Time) error {
	if !TransitionAllowed(s.Status, StatusExpired) {
		return ErrInvalidTransition
	}
	s.Status = StatusExpired
	s.UpdatedAt = now
	return nil
}

// Cancel records a customer cancellation.
func (s *Subscription) Cancel(now time.Time) error {
	if !TransitionAllowed(s.Status, StatusCanceled) {
		return ErrInvalidTransition
	}
	s.Status = StatusCanceled
	s.CancelAtPeriodEnd = true
	s.CanceledAt = &now
	s.UpdatedAt = now
	return nil
}

// Renew opens a new period of days starting now. Expired and past-due
// subscriptions become active again.
func (s *Subscription) Renew(now time.Time, days int) error {
	if days <= 0 {
		return ErrInvalidPeriod
	}
	s.PeriodStart = now
	s.PeriodEnd = now.AddDate(0, 0, days)
	if s.Status == StatusExpired || s.Status == StatusPastDue {
		s.Status = StatusActive
	}
	s.UpdatedAt = now
	return nil
}

// SetCancelAtPeriodEnd keeps canceled_at consistent with the flag.
func (s *Subscription) SetCancelAtPeriodEnd(flag bool, now time.Time) {
	s.CancelAtPeriodEnd = flag
	switch {
	case flag && s.CanceledAt == nil:
		s.CanceledAt = &now
	case !flag && s.Status != StatusCanceled:
		s.CanceledAt = nil
	}
}
