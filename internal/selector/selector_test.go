package selector

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tripstack/contentfetch/internal/fetch"
)

func newTestSelector() *Selector {
	return New(Config{}, zap.NewNop())
}

func TestSelector_Select_ContentTypeRouteWinsFirst(t *testing.T) {
	t.Parallel()

	s := newTestSelector()
	got, err := s.Select("https://shop.example.com/hotel-deals", fetch.Options{ContentType: "price-monitoring"})
	require.NoError(t, err)
	require.Equal(t, []fetch.BackendID{fetch.BackendStructured, fetch.BackendBrowser, fetch.BackendStatic}, got)
}

func TestSelector_Select_BlogContentRoutesStatic(t *testing.T) {
	t.Parallel()

	s := newTestSelector()
	got, err := s.Select("https://example.com/posts/rome", fetch.Options{ContentType: "blog-content"})
	require.NoError(t, err)
	require.Equal(t, []fetch.BackendID{fetch.BackendStatic, fetch.BackendStructured, fetch.BackendBrowser}, got)
}

func TestSelector_Select_InteractiveSiteRequiresBrowser(t *testing.T) {
	t.Parallel()

	s := newTestSelector()
	got, err := s.Select("https://airbnb.com/rooms/123", fetch.Options{})
	require.NoError(t, err)
	require.Equal(t, []fetch.BackendID{fetch.BackendBrowser, fetch.BackendStatic, fetch.BackendStructured}, got)
}

func TestSelector_Select_SubdomainMatchesCuratedSet(t *testing.T) {
	t.Parallel()

	s := newTestSelector()
	got, err := s.Select("https://www.booking.com/hotel/it/rome", fetch.Options{})
	require.NoError(t, err)
	require.Equal(t, fetch.BackendBrowser, got[0])
}

func TestSelector_Select_RequiresJSPicksStructured(t *testing.T) {
	t.Parallel()

	s := newTestSelector()
	got, err := s.Select("https://example.com/map", fetch.Options{RequiresJS: true})
	require.NoError(t, err)
	require.Equal(t, []fetch.BackendID{fetch.BackendStructured, fetch.BackendBrowser, fetch.BackendStatic}, got)
}

func TestSelector_Select_ComplexPicksStructured(t *testing.T) {
	t.Parallel()

	s := newTestSelector()
	got, err := s.Select("https://example.com/itinerary", fetch.Options{Complexity: fetch.ComplexityComplex})
	require.NoError(t, err)
	require.Equal(t, fetch.BackendStructured, got[0])
}

func TestSelector_Select_DefaultIsStatic(t *testing.T) {
	t.Parallel()

	s := newTestSelector()
	got, err := s.Select("https://example.com/about", fetch.Options{})
	require.NoError(t, err)
	require.Equal(t, []fetch.BackendID{fetch.BackendStatic, fetch.BackendStructured, fetch.BackendBrowser}, got)
}

func TestSelector_Select_Deterministic(t *testing.T) {
	t.Parallel()

	s := newTestSelector()
	first, err := s.Select("https://airbnb.com/rooms/99", fetch.Options{})
	require.NoError(t, err)

	// Outcome reports must not influence future selections.
	s.ReportOutcome(fetch.BackendBrowser, false)
	s.ReportOutcome(fetch.BackendBrowser, false)
	s.ReportOutcome(fetch.BackendStatic, true)

	second, err := s.Select("https://airbnb.com/rooms/99", fetch.Options{})
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestSelector_Select_NoDuplicateBackends(t *testing.T) {
	t.Parallel()

	s := newTestSelector()
	for _, u := range []string{
		"https://airbnb.com/rooms/1",
		"https://example.com/blog",
		"https://example.com/app",
	} {
		got, err := s.Select(u, fetch.Options{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		seen := map[fetch.BackendID]bool{}
		for _, b := range got {
			require.False(t, seen[b], "backend %s repeated for %s", b, u)
			seen[b] = true
		}
	}
}

func TestSelector_Select_InvalidURL(t *testing.T) {
	t.Parallel()

	s := newTestSelector()
	_, err := s.Select("::not-a-url::", fetch.Options{})
	require.Error(t, err)
	require.True(t, fetch.IsValidation(err))
}

func TestSelector_Outcomes_Snapshot(t *testing.T) {
	t.Parallel()

	s := newTestSelector()
	s.ReportOutcome(fetch.BackendStatic, true)
	s.ReportOutcome(fetch.BackendStatic, false)
	s.ReportOutcome(fetch.BackendBrowser, true)

	got := s.Outcomes()
	require.Equal(t, 1, got[fetch.BackendStatic].Successes)
	require.Equal(t, 1, got[fetch.BackendStatic].Failures)
	require.Equal(t, 1, got[fetch.BackendBrowser].Successes)
}
