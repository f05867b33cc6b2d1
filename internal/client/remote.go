package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/talgya/clock-auction/internal/equilibrium"
	"github.com/talgya/clock-auction/internal/market"
)

// RemoteResult summarizes a remote bidding session.
type RemoteResult struct {
	Rounds    int          // rounds the agent saw while the market was active
	Submitted int          // bids posted
	Accepted  int          // bids the market buffered
	Final     market.State // last state observed
}

// RunRemote polls the server every interval and lets d bid at most once per
// market round. It waits for the market to open, and returns once it has
// seen an active market close or ctx ends.
func RunRemote(ctx context.Context, c *Client, d equilibrium.Decider, interval time.Duration) (RemoteResult, error) {
	var res RemoteResult
	lastRound := -1
	seenActive := false

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		st, err := c.State(ctx)
		if err != nil {
			return res, fmt.Errorf("fetching state: %w", err)
		}
		res.Final = st

		switch {
		case !st.Active && seenActive:
			slog.Info("market closed", "agent", d.ID(), "round", st.Round, "submitted", res.Submitted)
			return res, nil
		case !st.Active:
			slog.Debug("waiting for market to open", "agent", d.ID())
		case st.Round != lastRound:
			seenActive = true
			lastRound = st.Round
			res.Rounds++

			if bid, ok := d.Decide(st); ok {
				outcome, err := c.SubmitBid(ctx, bid)
				if err != nil {
					return res, fmt.Errorf("submitting bid: %w", err)
				}
				res.Submitted++
				if outcome == market.BidAccepted {
					res.Accepted++
				}
				slog.Debug("bid submitted", "agent", d.ID(), "round", st.Round, "bid", bid.String(), "outcome", outcome)
			}
		}

		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-ticker.C:
		}
	}
}
