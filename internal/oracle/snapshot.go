package oracle

import (
	"sort"
	"time"

	"GoldLedger/internal/errs"
	"GoldLedger/internal/index"

	"github.com/holiman/uint256"
)

// FeedSnapshot is one configured feed: its guards and cached price. Sources
// are not serialized; Restore resolves them by feed name.
type FeedSnapshot struct {
	Feed      string       `json:"feed"`
	Config    FeedConfig   `json:"config"`
	LastPrice *uint256.Int `json:"last_price,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
	Stale     bool         `json:"stale"`
}

// Snapshot returns every configured feed, the unit feed included.
func (o *PriceOracle) Snapshot() []FeedSnapshot {
	out := make([]FeedSnapshot, 0, len(o.feeds)+1)
	add := func(name string, f *feed) {
		if f == nil {
			return
		}
		s := FeedSnapshot{Feed: name, Config: f.cfg, Stale: f.stale}
		if f.last != nil {
			s.LastPrice = f.last.Price.Clone()
			s.UpdatedAt = f.last.UpdatedAt
		}
		out = append(out, s)
	}
	for name, f := range o.feeds {
		add(name, f)
	}
	add(UnitFeed, o.unit)
	sort.Slice(out, func(i, j int) bool { return out[i].Feed < out[j].Feed })
	return out
}

// Restore replaces the feed set with snaps. Each feed gets the source resolve
// returns for its name. On error the oracle is unchanged.
func (o *PriceOracle) Restore(snaps []FeedSnapshot, resolve func(feed string) Source) error {
	const op = "restore feeds"
	feeds := make(map[string]*feed, len(snaps))
	supported := index.NewSet[string]()
	var unit *feed
	for _, s := range snaps {
		if s.Feed == "" {
			return errs.Validation(op, "feed name is required")
		}
		if err := s.Config.Validate(); err != nil {
			return errs.Wrap(errs.KindValidation, op+" "+s.Feed, err)
		}
		var src Source
		if resolve != nil {
			src = resolve(s.Feed)
		}
		if src == nil {
			return errs.Validation(op, "no price source for %s", s.Feed)
		}
		f := &feed{source: src, cfg: s.Config, stale: s.Stale}
		if s.LastPrice != nil {
			f.last = &Quote{Price: s.LastPrice.Clone(), UpdatedAt: s.UpdatedAt}
		}
		if s.Feed == UnitFeed {
			if unit != nil {
				return errs.Validation(op, "unit feed appears twice")
			}
			unit = f
			continue
		}
		if _, dup := feeds[s.Feed]; dup {
			return errs.Validation(op, "feed %s appears twice", s.Feed)
		}
		feeds[s.Feed] = f
		supported.Add(s.Feed)
	}
	o.feeds = feeds
	o.supported = supported
	o.unit = unit
	return nil
}
