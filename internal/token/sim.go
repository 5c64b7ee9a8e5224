package token

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// SimBackend is an in-memory token backend used in sim mode and in tests.
// It tracks per-handle balances: the engine's unsold reserve under the zero
// address and investor balances under their wallets.
type SimBackend struct {
	mu      sync.Mutex
	nextID  int64
	classes map[string]*simClass
}

type simClass struct {
	name     string
	symbol   string
	bondID   int64
	balances map[common.Address]int64
}

// NewSimBackend creates an empty SimBackend.
func NewSimBackend() *SimBackend {
	return &SimBackend{classes: make(map[string]*simClass)}
}

// Mint creates a new token class when spec.Handle is empty, otherwise mints
// spec.Units of the existing class to spec.To.
func (s *SimBackend) Mint(ctx context.Context, spec MintSpec) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if spec.Handle == "" {
		s.nextID++
		handle := fmt.Sprintf("sim-token-%d", s.nextID)
		s.classes[handle] = &simClass{
			name:     spec.Name,
			symbol:   spec.Symbol,
			bondID:   spec.BondID,
			balances: map[common.Address]int64{spec.To: spec.Units},
		}
		return handle, nil
	}

	c, ok := s.classes[spec.Handle]
	if !ok {
		return "", fmt.Errorf("token: unknown handle %s", spec.Handle)
	}
	c.balances[spec.To] += spec.Units
	return spec.Handle, nil
}

// Transfer moves units from the engine reserve (zero address) to the buyer.
func (s *SimBackend) Transfer(ctx context.Context, handle string, to common.Address, units int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.classes[handle]
	if !ok {
		return fmt.Errorf("token: unknown handle %s", handle)
	}
	var reserve common.Address
	if c.balances[reserve] < units {
		return fmt.Errorf("token: reserve has %d units, need %d", c.balances[reserve], units)
	}
	c.balances[reserve] -= units
	c.balances[to] += units
	return nil
}

// Burn destroys units held by from.
func (s *SimBackend) Burn(ctx context.Context, handle string, from common.Address, units int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.classes[handle]
	if !ok {
		return fmt.Errorf("token: unknown handle %s", handle)
	}
	if c.balances[from] < units {
		return fmt.Errorf("token: %s holds %d units, cannot burn %d", from.Hex(), c.balances[from], units)
	}
	c.balances[from] -= units
	return nil
}

// Balance reports the units held by addr for the given handle.
func (s *SimBackend) Balance(handle string, addr common.Address) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[handle]
	if !ok {
		return 0
	}
	return c.balances[addr]
}

// TotalSupply reports the outstanding units of the given handle.
func (s *SimBackend) TotalSupply(handle string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[handle]
	if !ok {
		return 0
	}
	var total int64
	for _, bal := range c.balances {
		total += bal
	}
	return total
}

var _ Backend = (*SimBackend)(nil)
