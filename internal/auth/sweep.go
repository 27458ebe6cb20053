package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"authcore.org/internal/obs"
)

// SweepPageSize is the number of records read per sweep page.
const SweepPageSize = 50

// Sweeper deletes renewal records whose expiry is older than the
// retention period.
type Sweeper struct {
	store     Store
	retention time.Duration
	now       func() time.Time
	pageSize  int
}

// NewSweeper builds a sweeper. A nil clock means time.Now.
func NewSweeper(store Store, retention time.Duration, now func() time.Time) *Sweeper {
	if now == nil {
		now = time.Now
	}
	return &Sweeper{store: store, retention: retention, now: now, pageSize: SweepPageSize}
}

// Sweep runs one pass and returns the number of deleted records. Deleted
// rows leave the result set, so every page is read from the start; a
// short page ends the pass.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.retention)
	total := 0
	for {
		page, err := s.store.RenewTokens().ListExpired(ctx, cutoff, s.pageSize)
		if err != nil {
			return total, err
		}
		for _, rec := range page {
			if err := s.store.RenewTokens().Delete(ctx, rec.ID); err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return total, err
			}
			total++
		}
		if len(page) < s.pageSize {
			break
		}
	}
	obs.RenewTokensSwept(total)
	return total, nil
}

// Run sweeps once a day at hour:minute local time until ctx is done.
func (s *Sweeper) Run(ctx context.Context, hour, minute int) {
	for {
		next := NextRun(s.now(), hour, minute)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		n, err := s.Sweep(ctx)
		if err != nil {
			obs.Log("error", "renew token sweep failed", map[string]any{"error": err.Error(), "deleted": n})
			continue
		}
		obs.Log("info", "renew token sweep done", map[string]any{"deleted": n})
	}
}

// NextRun returns the first hour:minute strictly after now.
func NextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// ParseClock parses "HH:MM".
func ParseClock(v string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(v), ":")
	if !ok {
		return 0, 0, fmt.Errorf("clock %q: expected HH:MM", v)
	}
	if hour, err = strconv.Atoi(h); err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("clock %q: invalid hour", v)
	}
	if minute, err = strconv.Atoi(m); err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("clock %q: invalid minute", v)
	}
	return hour, minute, nil
}
