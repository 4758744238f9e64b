package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/controlplane/internal/config"
)

const keyPublicEndpoint = "public:%s:%s"

// PublicLimiter throttles unauthenticated endpoints per client address.
// Limits are read from the admission config on every call so reloads apply
// without restart.
type PublicLimiter struct {
	bucket *TokenBucket
	cfg    *config.AdmissionConfigHolder
}

func NewPublicLimiter(bucket *TokenBucket, cfg *config.AdmissionConfigHolder) *PublicLimiter {
	return &PublicLimiter{bucket: bucket, cfg: cfg}
}

func (l *PublicLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow reports whether clientIP may call the endpoint named scope.
func (l *PublicLimiter) Allow(ctx context.Context, scope, clientIP string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	limit := l.cfg.Get().PublicLimit
	if limit.Rate <= 0 || limit.Burst <= 0 {
		return &Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyPublicEndpoint, strings.TrimSpace(scope), strings.TrimSpace(clientIP))
	return l.bucket.Allow(ctx, key, limit.Rate, limit.Burst)
}
