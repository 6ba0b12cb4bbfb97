// streamtap connects to a monitor's event stream and prints live trades
// and one-resolution OHLC bars for a proposal.
// Usage: go run ./cmd/streamtap --url http://localhost:8080/stream --proposal <pda>
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/openfutarchy/futarchy-data/internal/bars"
	"github.com/openfutarchy/futarchy-data/internal/sse"
)

func main() {
	url := flag.String("url", "http://localhost:8080/stream", "monitor stream endpoint")
	proposal := flag.String("proposal", "", "proposal PDA to follow (empty: all)")
	resolution := flag.Duration("resolution", time.Minute, "bar width")
	verbose := flag.Bool("verbose", false, "print raw event JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	client := sse.NewClient(sse.DefaultClientConfig(*url), logger)
	defer client.Close()

	agg := bars.New(*resolution)

	// Bar updates are applied on the client's dispatch goroutine; the
	// aggregator has no other users.
	unsub := client.Subscribe(sse.KindTrade, *proposal, func(data []byte) {
		if *verbose {
			fmt.Printf("raw: %s\n", data)
		}

		var swap sse.SwapPayload
		if err := json.Unmarshal(data, &swap); err != nil {
			logger.Warn("bad swap payload", "error", err)
			return
		}

		ts, err := time.Parse(time.RFC3339Nano, swap.Timestamp)
		if err != nil {
			ts = time.Now()
		}
		fmt.Printf("[%s] %s market=%d %s in=%s out=%s\n",
			ts.Format("15:04:05"), swap.Pool, swap.Market, swap.Direction,
			swap.AmountIn, swap.AmountOut)

		price, volume, ok := swapBarInputs(swap)
		if !ok {
			return
		}
		bar := agg.Update(price, volume, ts)
		fmt.Printf("  bar %s o=%s h=%s l=%s c=%s v=%d trades=%d\n",
			bar.Start.Format("15:04"),
			bar.Open.FloatString(4), bar.High.FloatString(4),
			bar.Low.FloatString(4), bar.Close.FloatString(4),
			bar.Volume, bar.Trades)
	})
	defer unsub()

	unsubTWAP := client.Subscribe(sse.KindTWAP, *proposal, func(data []byte) {
		var twap sse.TWAPPayload
		if err := json.Unmarshal(data, &twap); err != nil {
			return
		}
		fmt.Printf("twap market=%d %s\n", twap.Market, twap.TWAP)
	})
	defer unsubTWAP()

	logger.Info("tapping stream", "url", *url, "proposal", *proposal, "resolution", *resolution)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("done")
}

// swapBarInputs derives the bar price and volume from a swap payload.
func swapBarInputs(swap sse.SwapPayload) (*big.Rat, uint64, bool) {
	in, err := strconv.ParseUint(swap.AmountIn, 10, 64)
	if err != nil {
		return nil, 0, false
	}
	out, err := strconv.ParseUint(swap.AmountOut, 10, 64)
	if err != nil {
		return nil, 0, false
	}

	var quote, base uint64
	switch swap.Direction {
	case "buy":
		quote, base = in, out
	case "sell":
		base, quote = in, out
	default:
		return nil, 0, false
	}
	if base == 0 {
		return nil, 0, false
	}

	price := new(big.Rat).SetFrac(
		new(big.Int).SetUint64(quote),
		new(big.Int).SetUint64(base),
	)
	return price, quote, true
}
