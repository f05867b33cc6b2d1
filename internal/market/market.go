package market

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/talgya/clock-auction/internal/metrics"
)

// ErrInvalidConfig is returned by Init for a non-positive slot count or increment.
var ErrInvalidConfig = errors.New("invalid market configuration")

// Market owns item prices, winners, the round counter and the active flag.
// All reads go through State, which returns a copy.
//
// Locking: mu guards items/round/active. SubmitBid holds mu for reading so
// many submitters can append concurrently (serialized on bidMu) while
// ResolveRound takes mu exclusively, which keeps a resolution atomic with
// respect to readers, submitters and other resolutions.
type Market struct {
	mu        sync.RWMutex
	items     []Item
	round     int
	active    bool
	increment float64

	bidMu sync.Mutex
	bids  []Bid

	accepted  atomic.Int64
	discarded atomic.Int64

	metrics *metrics.Metrics
}

// New creates an uninitialized, inactive market. Call Init before bidding.
// m may be nil.
func New(m *metrics.Metrics) *Market {
	return &Market{metrics: m}
}

// Init resets the market to slotCount items at price 0 with no winners,
// round 0, active.
func (mk *Market) Init(slotCount int, increment float64) error {
	if slotCount <= 0 {
		return fmt.Errorf("%w: slot count must be positive, got %d", ErrInvalidConfig, slotCount)
	}
	if increment <= 0 {
		return fmt.Errorf("%w: price increment must be positive, got %v", ErrInvalidConfig, increment)
	}

	mk.mu.Lock()
	defer mk.mu.Unlock()

	items := make([]Item, slotCount)
	for i := range items {
		items[i] = Item{ID: SlotID(i + 1)}
	}
	mk.items = items
	mk.round = 0
	mk.active = true
	mk.increment = increment

	mk.bidMu.Lock()
	mk.bids = nil
	mk.bidMu.Unlock()

	mk.metrics.MarketActive(true)
	slog.Info("auction initialized", "slots", slotCount, "increment", increment)
	return nil
}

// State returns an immutable snapshot.
func (mk *Market) State() State {
	mk.mu.RLock()
	defer mk.mu.RUnlock()
	return mk.snapshotLocked()
}

func (mk *Market) snapshotLocked() State {
	items := make([]Item, len(mk.items))
	copy(items, mk.items)
	return State{
		Items:     items,
		Active:    mk.active,
		Round:     mk.round,
		Increment: mk.increment,
	}
}

// SubmitBid buffers a bid for the current round. Once the market is inactive
// the bid is dropped and BidDiscarded is returned; the drop is counted and logged.
func (mk *Market) SubmitBid(b Bid) BidOutcome {
	mk.mu.RLock()
	defer mk.mu.RUnlock()

	if !mk.active {
		mk.discarded.Add(1)
		mk.metrics.BidDiscarded()
		slog.Warn("auction is over, bid discarded",
			"agent", b.AgentID, "item", b.ItemID, "amount", b.Amount)
		return BidDiscarded
	}

	mk.bidMu.Lock()
	mk.bids = append(mk.bids, b)
	mk.bidMu.Unlock()

	mk.accepted.Add(1)
	mk.metrics.BidAccepted()
	return BidAccepted
}

// AcceptedBids returns how many bids have been buffered since the market was created.
func (mk *Market) AcceptedBids() int64 {
	return mk.accepted.Load()
}

// DiscardedBids returns how many bids were dropped because the market was inactive.
func (mk *Market) DiscardedBids() int64 {
	return mk.discarded.Load()
}

// PendingBids returns the number of bids buffered for the current round.
func (mk *Market) PendingBids() int {
	mk.bidMu.Lock()
	defer mk.bidMu.Unlock()
	return len(mk.bids)
}

// ResolveRound settles the buffered bids item by item:
//   - no bids: unchanged
//   - one bid of amount A: price = max(price, A), winner = bidder
//   - two or more bids: winner cleared, price += increment (no amount tie-break)
//
// The buffer is cleared and the round advances. If no item's price or winner
// changed, the market becomes permanently inactive. Resolving an inactive
// market is a no-op.
func (mk *Market) ResolveRound() Resolution {
	mk.mu.Lock()
	defer mk.mu.Unlock()

	if !mk.active {
		return Resolution{Round: mk.round, NoOp: true}
	}

	mk.bidMu.Lock()
	bids := mk.bids
	mk.bids = nil
	mk.bidMu.Unlock()

	mk.round++
	slog.Debug("resolving round", "round", mk.round, "bids", len(bids))

	byItem := make(map[string][]Bid, len(mk.items))
	for _, b := range bids {
		byItem[b.ItemID] = append(byItem[b.ItemID], b)
	}

	res := Resolution{Round: mk.round, BidCount: len(bids)}

	for i := range mk.items {
		it := &mk.items[i]
		itemBids := byItem[it.ID]

		switch len(itemBids) {
		case 0:
			continue

		case 1:
			b := itemBids[0]
			newPrice := max(it.Price, b.Amount)
			if b.AgentID != it.Winner || newPrice > it.Price {
				res.Changed = true
				res.Won = append(res.Won, it.ID)
				slog.Debug("item won", "item", it.ID, "agent", b.AgentID, "price", newPrice)
			}
			it.Price = newPrice
			it.Winner = b.AgentID

		default:
			it.Price += mk.increment
			it.Winner = ""
			res.Changed = true
			res.OverDemanded = append(res.OverDemanded, it.ID)
			slog.Debug("item over-demanded", "item", it.ID, "bidders", len(itemBids), "price", it.Price)
		}
	}

	if !res.Changed {
		mk.active = false
		res.Terminated = true
		mk.metrics.MarketActive(false)
		slog.Info("auction terminated", "round", mk.round)
	}

	revenue := 0.0
	for _, it := range mk.items {
		revenue += it.Price
	}
	mk.metrics.RoundResolved(len(res.OverDemanded), revenue)

	return res
}
