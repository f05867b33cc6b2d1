// Package market implements the ascending-price clock auction: a round-based
// state machine that buffers sealed bids and resolves them atomically.
package market

import "fmt"

// Item is one auctioned slot. An empty Winner means nobody holds it.
type Item struct {
	ID     string  `json:"id"`
	Price  float64 `json:"price"`
	Winner string  `json:"winner,omitempty"`
}

// HasWinner reports whether the item is currently held.
func (it Item) HasWinner() bool {
	return it.Winner != ""
}

// Bid is an offer to take ItemID at Amount. Bids live for one round only.
type Bid struct {
	AgentID string  `json:"agent_id"`
	ItemID  string  `json:"item_id"`
	Amount  float64 `json:"amount"`
}

func (b Bid) String() string {
	return fmt.Sprintf("%s -> %s @ %.2f", b.AgentID, b.ItemID, b.Amount)
}

// State is an immutable snapshot of the market. Items are in slot order.
// Snapshots never alias live market storage.
type State struct {
	Items     []Item  `json:"items"`
	Active    bool    `json:"active"`
	Round     int     `json:"round"`
	Increment float64 `json:"increment"`
}

// Item looks up an item by id.
func (s State) Item(id string) (Item, bool) {
	for _, it := range s.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// Ask is the price a bidder must offer to contest it: current price plus the increment.
func (s State) Ask(it Item) float64 {
	return it.Price + s.Increment
}

// Revenue sums all item prices.
func (s State) Revenue() float64 {
	total := 0.0
	for _, it := range s.Items {
		total += it.Price
	}
	return total
}

// HeldBy returns the items currently won by agentID.
func (s State) HeldBy(agentID string) []Item {
	var held []Item
	for _, it := range s.Items {
		if it.Winner == agentID {
			held = append(held, it)
		}
	}
	return held
}

// BidOutcome tells the submitter what happened to a bid.
type BidOutcome int

const (
	// BidAccepted means the bid was buffered for the current round.
	BidAccepted BidOutcome = iota
	// BidDiscarded means the market was inactive and the bid was dropped.
	BidDiscarded
)

func (o BidOutcome) String() string {
	switch o {
	case BidAccepted:
		return "accepted"
	case BidDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// MarshalText encodes the outcome as its name.
func (o BidOutcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Resolution summarizes what one call to ResolveRound did.
type Resolution struct {
	Round        int      `json:"round"`
	BidCount     int      `json:"bid_count"`
	Changed      bool     `json:"changed"`
	Won          []string `json:"won,omitempty"`           // item ids taken by a single bidder
	OverDemanded []string `json:"over_demanded,omitempty"` // item ids whose price rose
	Terminated   bool     `json:"terminated"`              // this call made the market inactive
	NoOp         bool     `json:"no_op"`                   // market was already inactive
}

// SlotID names the i-th slot (1-based).
func SlotID(i int) string {
	return fmt.Sprintf("SLOT_%d", i)
}
