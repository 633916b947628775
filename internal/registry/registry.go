package registry

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/DYBL777/DYBL-Crypto42/internal/codec"
)

// Ticket is one participant's standing entry: up to two independent picks
// per week, a validity window in weeks, and the arena slot invariant — while
// active, Slot always equals the ticket's actual index in the live array.
type Ticket struct {
	ID    uuid.UUID
	Picks []codec.PickMask // one or two picks, scored independently

	Slot      int // index in the live array; -1 once inactive
	StartWeek int64
	EndWeek   int64 // last week the ticket plays (inclusive)

	JoinedWeek int64 // first enrollment, for founding tenure
	Active     bool
}

// Expired reports whether the ticket no longer covers the given week.
func (t *Ticket) Expired(week int64) bool {
	return week > t.EndWeek
}

// Pending reports whether the ticket has not started playing yet.
func (t *Ticket) Pending(week int64) bool {
	return week < t.StartWeek
}

// TenureWeeks is the continuous coverage the ticket has paid for.
func (t *Ticket) TenureWeeks() int64 {
	return t.EndWeek - t.JoinedWeek + 1
}

// Registry is the ordered arena of active tickets: a vector of live entries
// plus an identity index. Removal swaps the last live entry into the freed
// slot and fixes its recorded index — O(1), order not preserved.
//
// Traversal contract: a full pass visits every ticket active at pass start
// exactly once, provided in-pass removals happen only at the pass cursor
// (the settlement engine's expiry removal). The swapped-in entry lands on
// the cursor slot and the cursor must not advance past it.
//
// Not thread-safe — owned by the single-threaded settlement core.
type Registry struct {
	live []*Ticket
	byID map[uuid.UUID]*Ticket
}

func New() *Registry {
	return &Registry{
		byID: make(map[uuid.UUID]*Ticket),
	}
}

// Len returns the number of active tickets.
func (r *Registry) Len() int {
	return len(r.live)
}

// At returns the ticket in slot i.
func (r *Registry) At(i int) *Ticket {
	return r.live[i]
}

// Get looks a ticket up by identity. Inactive tickets are not found.
func (r *Registry) Get(id uuid.UUID) (*Ticket, bool) {
	t, ok := r.byID[id]
	return t, ok
}

// Enroll appends a ticket, assigning its slot.
func (r *Registry) Enroll(t *Ticket) error {
	if _, exists := r.byID[t.ID]; exists {
		return fmt.Errorf("registry: ticket %s already enrolled", t.ID)
	}
	if len(t.Picks) < 1 || len(t.Picks) > 2 {
		return fmt.Errorf("registry: ticket must carry one or two picks, got %d", len(t.Picks))
	}
	for _, p := range t.Picks {
		if !codec.Valid(p) {
			return fmt.Errorf("registry: malformed pick mask %#x", uint64(p))
		}
	}

	t.Slot = len(r.live)
	t.Active = true
	r.live = append(r.live, t)
	r.byID[t.ID] = t
	return nil
}

// RemoveAt deactivates the ticket in slot i via swap-and-pop and returns it.
// The previously-last ticket, if any remains, now occupies slot i with its
// recorded index updated.
func (r *Registry) RemoveAt(i int) *Ticket {
	if i < 0 || i >= len(r.live) {
		panic(fmt.Sprintf("registry: RemoveAt(%d) with %d live tickets", i, len(r.live)))
	}

	t := r.live[i]
	last := len(r.live) - 1

	r.live[i] = r.live[last]
	r.live[i].Slot = i
	r.live[last] = nil
	r.live = r.live[:last]

	t.Active = false
	t.Slot = -1
	delete(r.byID, t.ID)
	return t
}

// Remove deactivates a ticket by identity.
func (r *Registry) Remove(id uuid.UUID) (*Ticket, bool) {
	t, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	if r.live[t.Slot] != t {
		panic(fmt.Sprintf("registry: slot invariant broken for ticket %s (slot %d)", t.ID, t.Slot))
	}
	return r.RemoveAt(t.Slot), true
}

// SweepExpired removes up to max expired tickets scanning from cursor,
// returning the resume cursor and the removed tickets. Used by the explicit
// expiry sweep outside settlement.
func (r *Registry) SweepExpired(week int64, cursor, max int) (next int, removed []*Ticket) {
	i := cursor
	for i < len(r.live) && len(removed) < max {
		if r.live[i].Expired(week) {
			removed = append(removed, r.RemoveAt(i))
			continue // swapped-in entry occupies slot i, re-examine it
		}
		i++
	}
	if i >= len(r.live) {
		i = 0
	}
	return i, removed
}

// CheckSlotInvariant verifies every live ticket's recorded slot matches its
// position. An inconsistency is a fatal logic error, surfaced for tests and
// the core's post-operation checks.
func (r *Registry) CheckSlotInvariant() error {
	for i, t := range r.live {
		if t.Slot != i {
			return fmt.Errorf("registry: ticket %s records slot %d but sits at %d", t.ID, t.Slot, i)
		}
		if !t.Active {
			return fmt.Errorf("registry: inactive ticket %s in live array", t.ID)
		}
	}
	if len(r.live) != len(r.byID) {
		return fmt.Errorf("registry: %d live tickets but %d indexed", len(r.live), len(r.byID))
	}
	return nil
}
