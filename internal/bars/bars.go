// Package bars folds a trade stream into fixed-width OHLC bars on the
// client side, for consumers that chart live data without hitting the
// history endpoints.
package bars

import (
	"math/big"
	"sort"
	"time"
)

// Bar is one OHLC bucket under construction or completed.
type Bar struct {
	Start  time.Time
	Open   *big.Rat
	High   *big.Rat
	Low    *big.Rat
	Close  *big.Rat
	Volume uint64
	Trades int
}

func (b *Bar) clone() Bar {
	out := *b
	out.Open = new(big.Rat).Set(b.Open)
	out.High = new(big.Rat).Set(b.High)
	out.Low = new(big.Rat).Set(b.Low)
	out.Close = new(big.Rat).Set(b.Close)
	return out
}

// Aggregator buckets trades into bars of one fixed width. Bars older
// than two widths behind the newest are pruned, so the aggregator holds
// at most the live bar and its recent predecessors. An Aggregator has a
// single owner and is not safe for concurrent use.
type Aggregator struct {
	width time.Duration
	bars  map[time.Time]*Bar
	last  *big.Rat
}

// New creates an Aggregator with the given bar width.
func New(width time.Duration) *Aggregator {
	return &Aggregator{
		width: width,
		bars:  make(map[time.Time]*Bar),
	}
}

// Update folds one trade into its bar and returns a copy of the bar's
// state after the update. A bar opens at the previous bar's close; the
// very first trade opens its bar at its own price.
func (a *Aggregator) Update(price *big.Rat, volume uint64, ts time.Time) Bar {
	start := ts.Truncate(a.width)

	bar, ok := a.bars[start]
	if !ok {
		open := price
		if a.last != nil {
			open = a.last
		}
		bar = &Bar{
			Start: start,
			Open:  new(big.Rat).Set(open),
			High:  new(big.Rat).Set(open),
			Low:   new(big.Rat).Set(open),
			Close: new(big.Rat).Set(open),
		}
		a.bars[start] = bar
		a.prune(start)
	}

	if price.Cmp(bar.High) > 0 {
		bar.High.Set(price)
	}
	if price.Cmp(bar.Low) < 0 {
		bar.Low.Set(price)
	}
	bar.Close.Set(price)
	bar.Volume += volume
	bar.Trades++

	a.last = new(big.Rat).Set(price)
	return bar.clone()
}

// Current returns a copy of the bar containing ts, if one exists.
func (a *Aggregator) Current(ts time.Time) (Bar, bool) {
	bar, ok := a.bars[ts.Truncate(a.width)]
	if !ok {
		return Bar{}, false
	}
	return bar.clone(), true
}

// Bars returns copies of all retained bars, oldest first.
func (a *Aggregator) Bars() []Bar {
	out := make([]Bar, 0, len(a.bars))
	for _, bar := range a.bars {
		out = append(out, bar.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Reset drops all state.
func (a *Aggregator) Reset() {
	a.bars = make(map[time.Time]*Bar)
	a.last = nil
}

// prune drops bars more than two widths behind newest.
func (a *Aggregator) prune(newest time.Time) {
	cutoff := newest.Add(-2 * a.width)
	for start := range a.bars {
		if start.Before(cutoff) {
			delete(a.bars, start)
		}
	}
}
