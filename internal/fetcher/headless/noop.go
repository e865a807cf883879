package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/harvester/internal/harvest"
)

// ErrNotConfigured explains why an Unavailable fetcher refuses work.
var ErrNotConfigured = errors.New("headless browser not configured")

// Unavailable implements harvest.Fetcher for builds or runs without a
// browser. Every call fails with a terminal setup error so the retry
// controller gives up immediately.
type Unavailable struct {
	Reason error
}

// NewUnavailable creates a fetcher that always reports reason.
func NewUnavailable(reason error) *Unavailable {
	if reason == nil {
		reason = ErrNotConfigured
	}
	return &Unavailable{Reason: reason}
}

// Fetch always returns *harvest.AutomationSetupError.
func (u Unavailable) Fetch(_ context.Context, _ harvest.FetchRequest) (harvest.Page, error) {
	reason := u.Reason
	if reason == nil {
		reason = ErrNotConfigured
	}
	return harvest.Page{}, &harvest.AutomationSetupError{Err: reason}
}
