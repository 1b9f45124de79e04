package ingest

import (
	"context"
	"iter"
	"testing"

	"github.com/flare-systems/flare-splunk/internal/flare"
	"github.com/flare-systems/flare-splunk/internal/settings"
	"github.com/flare-systems/flare-splunk/internal/settings/settingstest"
)

func newTestSettings(t *testing.T) (*settings.Store, *settingstest.Config) {
	t.Helper()

	store, _, config := settingstest.NewStore()
	return store, config
}

type fakeFeed struct {
	events []flare.FeedEvent
	err    error
	// queries records every query the feed was opened with.
	queries *[]flare.FeedQuery
}

func (f *fakeFeed) Events(_ context.Context, q flare.FeedQuery) iter.Seq2[flare.FeedEvent, error] {
	if f.queries != nil {
		*f.queries = append(*f.queries, q)
	}
	return func(yield func(flare.FeedEvent, error) bool) {
		for _, ev := range f.events {
			if !yield(ev, nil) {
				return
			}
		}
		if f.err != nil {
			yield(flare.FeedEvent{}, f.err)
		}
	}
}
