// Package revenue implements periodic revenue-source snapshotting (spec
// §3 "Revenue snapshot", C1 scheduled collection). Grounded on
// internal/health's checkHTTP pattern for the fetch-and-classify shape,
// generalized from up/down status to a numeric reading.
package revenue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/orchestratord/orchestratord/internal/config"
	"github.com/orchestratord/orchestratord/internal/db"
	"github.com/orchestratord/orchestratord/internal/obslog"
)

// Reading is what Collect produces for one source before persistence.
type Reading struct {
	Source      string
	Value       int64
	Unreachable bool
	RawBody     string
}

// Collector fetches each configured source and persists a snapshot,
// distinguishing "unreachable" from "genuinely zero" per spec §3.
type Collector struct {
	sources []config.RevenueSource
	store   *db.RevenueRepo
	client  *http.Client
	log     *obslog.Logger
	now     func() time.Time
}

// New builds a Collector from configuration.
func New(cfg config.Revenue, store *db.RevenueRepo, log *obslog.Logger) *Collector {
	return &Collector{
		sources: cfg.Sources,
		store:   store,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log,
		now:     time.Now,
	}
}

// sourcePayload is the expected response shape from a revenue source
// endpoint: a single atomic integer value (e.g. cents).
type sourcePayload struct {
	ValueAtomic int64 `json:"valueAtomic"`
}

// CollectAll fetches every configured source and writes one snapshot
// row each, regardless of individual failures.
func (c *Collector) CollectAll(ctx context.Context) []Reading {
	readings := make([]Reading, 0, len(c.sources))
	for _, src := range c.sources {
		r := c.collectOne(ctx, src)
		readings = append(readings, r)

		snap := db.RevenueSnapshot{
			Source:      src.Name,
			CapturedAt:  c.now(),
			ValueAtomic: r.Value,
			Unreachable: r.Unreachable,
			Metadata:    r.RawBody,
		}
		if err := c.store.Insert(ctx, snap); err != nil {
			c.log.WithField("source", src.Name).WithError(err).Warn("persist revenue snapshot failed")
		}
	}
	return readings
}

func (c *Collector) collectOne(ctx context.Context, src config.RevenueSource) Reading {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return Reading{Source: src.Name, Unreachable: true}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.WithField("source", src.Name).WithError(err).Debug("revenue source unreachable")
		return Reading{Source: src.Name, Unreachable: true}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil || resp.StatusCode >= 400 {
		return Reading{Source: src.Name, Unreachable: true}
	}

	var payload sourcePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.log.WithField("source", src.Name).Warn("revenue source returned unparseable body")
		return Reading{Source: src.Name, Unreachable: true, RawBody: string(body)}
	}
	return Reading{Source: src.Name, Value: payload.ValueAtomic, RawBody: string(body)}
}

// WeeklySummary sums the delta for source across the trailing 7 days,
// used by the weekly revenue digest job (spec §4.10 cron table).
func (c *Collector) WeeklySummary(ctx context.Context, source string) (delta int64, latest int64, err error) {
	since, err := c.store.Since(ctx, source, c.now().Add(-7*24*time.Hour))
	if err != nil {
		return 0, 0, fmt.Errorf("weekly summary for %s: %w", source, err)
	}
	if len(since) == 0 {
		return 0, 0, nil
	}
	first := since[0]
	last := since[len(since)-1]
	if first.Unreachable || last.Unreachable {
		return 0, last.ValueAtomic, nil
	}
	return last.ValueAtomic - first.ValueAtomic, last.ValueAtomic, nil
}
