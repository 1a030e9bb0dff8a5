package coachplan

import (
	"log/slog"
	"time"

	"golang.org/x/text/language"
)

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger. Nil is ignored.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock replaces time.Now. Tests use it to pin the current instant.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithUsageReader snapshots live storage usage into new rows and entitlements.
func WithUsageReader(r UsageReader) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.usage = r
		}
	}
}

// WithCheckoutTTL sets how long a subscription may wait for authorization
// before the pending row is abandoned. Default 7 days.
func WithCheckoutTTL(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.checkoutTTL = d
		}
	}
}

// WithRenewalWindow sets how close to expiry a recurring charge must land to
// count as payment for the next period. Default 7 days.
func WithRenewalWindow(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.renewalWindow = d
		}
	}
}

// WithLocale sets the language used to format prices in messages.
func WithLocale(tag language.Tag) ServiceOption {
	return func(s *Service) {
		s.locale = tag
	}
}
