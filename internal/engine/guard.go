package engine

import (
	"sync"

	"github.com/alanyoungcy/bondledger/internal/domain"
)

// Guard is the in-call reentrancy guard. BuyBond and RedeemBond hold the
// flag for their full duration, including the external token and value
// transfers, so a callback that re-enters the engine for the same bond fails
// with ErrReentrancy instead of observing half-finished accounting.
//
// The flag is keyed per bond: that both trips same-goroutine reentrancy and
// serializes concurrent value-moving calls on one bond's records. The
// service layer adds a redis lock for cross-process exclusion; this guard
// has to be in-process memory because a networked lock cannot fail fast on
// a reentrant callback inside its own critical section.
type Guard struct {
	mu       sync.Mutex
	inFlight map[int64]struct{}
}

// NewGuard creates an empty Guard.
func NewGuard() *Guard {
	return &Guard{inFlight: make(map[int64]struct{})}
}

// Enter marks a call on the given bond as in flight. It fails with
// ErrReentrancy if one already is.
func (g *Guard) Enter(bondID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[bondID]; busy {
		return domain.ErrReentrancy
	}
	g.inFlight[bondID] = struct{}{}
	return nil
}

// Exit clears the in-flight flag. Safe to call for a bond that is not
// in flight.
func (g *Guard) Exit(bondID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, bondID)
}
