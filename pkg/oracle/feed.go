package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/wattlink/wattlink/pkg/util"
)

// FeedProvider queries an HTTP gateway in front of the on-chain price feed
// and time-lock contracts. Every request carries a bounded timeout; any
// transport failure, non-200 answer, or stale observation maps to
// ErrUnavailable so a hung or lagging gateway can never look eligible.
type FeedProvider struct {
	baseURL  string
	client   *http.Client
	clock    util.Clock
	interval time.Duration
	maxStale time.Duration
}

type FeedConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	MinInterval    time.Duration
	MaxStale       time.Duration
}

func NewFeedProvider(cfg FeedConfig, clock util.Clock) *FeedProvider {
	return &FeedProvider{
		baseURL:  cfg.BaseURL,
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		clock:    clock,
		interval: cfg.MinInterval,
		maxStale: cfg.MaxStale,
	}
}

type priceAnswer struct {
	Price     int64 `json:"price"`     // 8-decimal fixed point
	UpdatedAt int64 `json:"updatedAt"` // Unix milliseconds
}

type lastExecutionAnswer struct {
	Timestamp int64 `json:"timestamp"` // Unix milliseconds, 0 = never
}

func (f *FeedProvider) CurrentPrice(ctx context.Context, ref string) (int64, int64, error) {
	var ans priceAnswer
	if err := f.getJSON(ctx, "/feeds/"+url.PathEscape(ref)+"/latest", &ans); err != nil {
		return 0, 0, err
	}
	if f.maxStale > 0 && f.clock.Now().UnixMilli()-ans.UpdatedAt > f.maxStale.Milliseconds() {
		return 0, 0, fmt.Errorf("%w: feed %s answer is stale (updated %d)", ErrUnavailable, ref, ans.UpdatedAt)
	}
	return ans.Price, ans.UpdatedAt, nil
}

func (f *FeedProvider) LastExecutionTime(ctx context.Context, seriesID string) (int64, error) {
	var ans lastExecutionAnswer
	if err := f.getJSON(ctx, "/series/"+url.PathEscape(seriesID)+"/last-execution", &ans); err != nil {
		return 0, err
	}
	return ans.Timestamp, nil
}

// MinimumInterval is a contract constant mirrored into config; answering it
// locally avoids a round trip per evaluation.
func (f *FeedProvider) MinimumInterval(context.Context) (time.Duration, error) {
	return f.interval, nil
}

// RecordExecution posts an execution instant to the gateway, which relays it
// to the time-lock contract. Best effort: on a lost write the next member's
// time gate may open earlier than the minimum interval. The fill itself is
// already durable through the series manager.
func (f *FeedProvider) RecordExecution(seriesID string, ts int64) {
	body, _ := json.Marshal(lastExecutionAnswer{Timestamp: ts})
	ctx, cancel := context.WithTimeout(context.Background(), f.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		f.baseURL+"/series/"+url.PathEscape(seriesID)+"/last-execution", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

func (f *FeedProvider) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: gateway returned %d for %s", ErrUnavailable, resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: bad gateway answer: %v", ErrUnavailable, err)
	}
	return nil
}

var _ Provider = (*FeedProvider)(nil)
