// Copyright 2025 DeFlow
//
// Package spending enforces per-user, per-asset daily spending caps. This
// is the first check in a transfer action's validation chain (per the
// propagation order shared with workflow.Validator): a request that would
// breach the user's daily limit is rejected before any signature is
// requested or chain call attempted.

package spending

import (
	"sync"
	"time"

	"github.com/Legatia/deflow/pkg/apperrors"
)

// dayKey truncates t to a UTC calendar day, used to bucket spent amounts.
func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Limiter tracks how much each user has spent per asset per UTC day and
// rejects requests that would exceed their configured daily limit.
type Limiter struct {
	mu     sync.Mutex
	limits map[string]map[string]float64            // userID -> asset -> daily limit
	spent  map[string]map[string]map[string]float64  // userID -> asset -> day -> spent
}

// NewLimiter creates an empty spending limiter.
func NewLimiter() *Limiter {
	return &Limiter{
		limits: make(map[string]map[string]float64),
		spent:  make(map[string]map[string]map[string]float64),
	}
}

// SetDailyLimit sets userID's daily cap for asset, in the asset's own units
// (e.g. USD-normalized amount, left to the caller's convention).
func (l *Limiter) SetDailyLimit(userID, asset string, limit float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limits[userID] == nil {
		l.limits[userID] = make(map[string]float64)
	}
	l.limits[userID][asset] = limit
}

// CheckAndReserve atomically checks whether amount can be spent today
// without exceeding userID's daily limit for asset, and if so records it as
// spent. Returns an error without recording anything if the limit would be
// exceeded. A user/asset with no configured limit is treated as unlimited.
func (l *Limiter) CheckAndReserve(userID, asset string, amount float64, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit, hasLimit := l.limits[userID][asset]
	if !hasLimit {
		return nil
	}

	day := dayKey(now)
	if l.spent[userID] == nil {
		l.spent[userID] = make(map[string]map[string]float64)
	}
	if l.spent[userID][asset] == nil {
		l.spent[userID][asset] = make(map[string]float64)
	}

	already := l.spent[userID][asset][day]
	if already+amount > limit {
		return apperrors.Newf(apperrors.KindDailyLimitExceeded, "daily limit exceeded for %s: already spent %.8f, requested %.8f, limit %.8f", asset, already, amount, limit)
	}

	l.spent[userID][asset][day] = already + amount
	return nil
}

// Release gives back a reserved amount, e.g. after a transfer that was
// authorized but ultimately failed to broadcast.
func (l *Limiter) Release(userID, asset string, amount float64, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	day := dayKey(now)
	if l.spent[userID] == nil || l.spent[userID][asset] == nil {
		return
	}
	remaining := l.spent[userID][asset][day] - amount
	if remaining < 0 {
		remaining = 0
	}
	l.spent[userID][asset][day] = remaining
}

// SpentToday returns how much userID has spent today for asset.
func (l *Limiter) SpentToday(userID, asset string, now time.Time) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.spent[userID] == nil {
		return 0
	}
	return l.spent[userID][asset][dayKey(now)]
}
