package fetcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/harvester/internal/harvest"
)

type namedFetcher string

func (n namedFetcher) Fetch(_ context.Context, request harvest.FetchRequest) (harvest.Page, error) {
	return harvest.Page{RequestedURL: request.URL, Body: []byte(n)}, nil
}

func TestSwitchRoutesByMode(t *testing.T) {
	t.Parallel()

	s := NewSwitch(namedFetcher("direct"), namedFetcher("automated"))
	ctx := context.Background()

	page, err := s.Fetch(ctx, harvest.FetchRequest{URL: "https://a", Mode: harvest.ModeDirect})
	require.NoError(t, err)
	assert.Equal(t, "direct", string(page.Body))

	page, err = s.Fetch(ctx, harvest.FetchRequest{URL: "https://a"})
	require.NoError(t, err)
	assert.Equal(t, "direct", string(page.Body))

	page, err = s.Fetch(ctx, harvest.FetchRequest{URL: "https://a", Mode: harvest.ModeAutomated})
	require.NoError(t, err)
	assert.Equal(t, "automated", string(page.Body))
}

func TestSwitchMissingTransports(t *testing.T) {
	t.Parallel()

	s := NewSwitch(nil, nil)
	ctx := context.Background()

	_, err := s.Fetch(ctx, harvest.FetchRequest{Mode: harvest.ModeDirect})
	assert.ErrorIs(t, err, ErrNoDirectFetcher)

	_, err = s.Fetch(ctx, harvest.FetchRequest{Mode: harvest.ModeAutomated})
	assert.True(t, harvest.IsAutomationSetup(err))

	_, err = s.Fetch(ctx, harvest.FetchRequest{Mode: "carrier-pigeon"})
	require.Error(t, err)
	assert.False(t, harvest.IsAutomationSetup(err))
}
