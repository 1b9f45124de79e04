package flare

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"strconv"
	"time"
)

const (
	feedPath      = "/firework/v2/me/feed"
	activityPath  = "/firework/v2/activities/"
	feedPageSize  = 50
	activityTries = 3
)

// Event is one feed item or full activity, kept as decoded JSON so unknown
// fields reach the output untouched.
type Event map[string]any

// UID returns metadata.uid.
func (e Event) UID() (string, error) {
	metadata, ok := e["metadata"].(map[string]any)
	if !ok {
		return "", errors.New("event has no metadata")
	}
	uid, ok := metadata["uid"].(string)
	if !ok || uid == "" {
		return "", errors.New("event metadata has no uid")
	}
	return uid, nil
}

// FeedQuery selects a window of the tenant feed.
type FeedQuery struct {
	// From is the cursor returned by a previous page.
	From string
	// StartDate bounds the feed to events after this day.
	StartDate time.Time
	// Severities and SourceTypes are filter tokens. Empty means no filter.
	Severities  []string
	SourceTypes []string
	// FullEventData replaces each feed item with its full activity.
	FullEventData bool
}

// FeedPage is one page of the feed.
type FeedPage struct {
	Items []Event `json:"items"`
	Next  string  `json:"next"`
}

// FeedEvent pairs an event with the cursor that resumes after its page.
type FeedEvent struct {
	Event Event
	Next  string
}

func (q FeedQuery) values() url.Values {
	v := url.Values{}
	v.Set("lite", "true")
	v.Set("size", strconv.Itoa(feedPageSize))
	if q.From != "" {
		v.Set("from", q.From)
	}
	start := q.StartDate
	if start.IsZero() {
		start = time.Now().UTC()
	}
	v.Set("time", start.Format(time.DateOnly)+"@")
	for _, s := range q.Severities {
		v.Add("severity", s)
	}
	for _, t := range q.SourceTypes {
		v.Add("type", t)
	}
	return v
}

// FeedPage fetches one page of the feed.
func (c *Client) FeedPage(ctx context.Context, q FeedQuery) (FeedPage, error) {
	raw, err := c.get(ctx, feedPath, q.values())
	if err != nil {
		return FeedPage{}, err
	}
	var page FeedPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return FeedPage{}, fmt.Errorf("decode feed page: %w", err)
	}
	return page, nil
}

// Events iterates the feed page by page until the API stops returning a
// cursor. The iteration stops at the first error.
func (c *Client) Events(ctx context.Context, q FeedQuery) iter.Seq2[FeedEvent, error] {
	return func(yield func(FeedEvent, error) bool) {
		for {
			page, err := c.FeedPage(ctx, q)
			if err != nil {
				yield(FeedEvent{}, err)
				return
			}
			for _, item := range page.Items {
				event := item
				if q.FullEventData {
					uid, err := item.UID()
					if err != nil {
						yield(FeedEvent{}, err)
						return
					}
					event, err = c.Activity(ctx, uid)
					if err != nil {
						yield(FeedEvent{}, err)
						return
					}
				}
				if !yield(FeedEvent{Event: event, Next: page.Next}, nil) {
					return
				}
			}
			if page.Next == "" || page.Next == q.From {
				return
			}
			q.From = page.Next
		}
	}
}

// Activity fetches the full event with uid. Each try is paced by the client
// limiter and failures are retried up to three tries in total.
func (c *Client) Activity(ctx context.Context, uid string) (Event, error) {
	for try := 1; try <= activityTries; try++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		event, err := c.activityOnce(ctx, uid)
		if err == nil {
			return event, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Debug("failed to fetch event", "uid", uid, "try", try, "err", err)
	}
	return nil, fmt.Errorf("failed to fetch full event data for %s after %d tries", uid, activityTries)
}

func (c *Client) activityOnce(ctx context.Context, uid string) (Event, error) {
	req, err := c.newGet(ctx, activityPath+url.PathEscape(uid), nil)
	if err != nil {
		return nil, err
	}
	// Tries are counted here, not by the transport.
	req = req.WithContext(withoutRetry(ctx))
	raw, err := c.send(req)
	if err != nil {
		return nil, err
	}
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("decode activity %s: %w", uid, err)
	}
	if pruned, ok := pruneEmpty(map[string]any(event)).(map[string]any); ok {
		event = pruned
	}
	return event, nil
}

// pruneEmpty drops nil, empty strings, empty lists and empty objects,
// recursively.
func pruneEmpty(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			if pruned := pruneEmpty(item); !isEmpty(pruned) {
				out[k] = pruned
			}
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if pruned := pruneEmpty(item); !isEmpty(pruned) {
				out = append(out, pruned)
			}
		}
		return out
	default:
		return v
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	default:
		return false
	}
}
