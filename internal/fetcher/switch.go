// Package fetcher routes fetch requests to the transport for their mode.
package fetcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/harvester/internal/harvest"
)

// ErrNoDirectFetcher is returned when direct mode was requested but never configured.
var ErrNoDirectFetcher = errors.New("direct fetcher not configured")

// Switch implements harvest.Fetcher by delegating on FetchRequest.Mode.
type Switch struct {
	direct    harvest.Fetcher
	automated harvest.Fetcher
}

// NewSwitch builds a Switch. Either fetcher may be nil.
func NewSwitch(direct, automated harvest.Fetcher) *Switch {
	return &Switch{direct: direct, automated: automated}
}

// Fetch sends request to the matching transport. An empty mode means direct.
func (s *Switch) Fetch(ctx context.Context, request harvest.FetchRequest) (harvest.Page, error) {
	switch request.Mode {
	case harvest.ModeDirect, "":
		if s.direct == nil {
			return harvest.Page{}, ErrNoDirectFetcher
		}
		return s.direct.Fetch(ctx, request)
	case harvest.ModeAutomated:
		if s.automated == nil {
			return harvest.Page{}, &harvest.AutomationSetupError{Err: errors.New("automated fetcher not configured")}
		}
		return s.automated.Fetch(ctx, request)
	default:
		return harvest.Page{}, fmt.Errorf("unknown fetch mode %q", request.Mode)
	}
}
