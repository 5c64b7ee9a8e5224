package engine

import (
	"errors"
	"testing"

	"github.com/alanyoungcy/bondledger/internal/domain"
)

func TestGuardEnterExit(t *testing.T) {
	g := NewGuard()

	if err := g.Enter(1); err != nil {
		t.Fatalf("first Enter: %v", err)
	}
	if err := g.Enter(1); !errors.Is(err, domain.ErrReentrancy) {
		t.Errorf("nested Enter error = %v, want ErrReentrancy", err)
	}
	// Other bonds are independent.
	if err := g.Enter(2); err != nil {
		t.Errorf("Enter(2) while 1 in flight: %v", err)
	}

	g.Exit(1)
	if err := g.Enter(1); err != nil {
		t.Errorf("Enter after Exit: %v", err)
	}
}

func TestGuardExitIdleBond(t *testing.T) {
	g := NewGuard()
	g.Exit(99)
	if err := g.Enter(99); err != nil {
		t.Errorf("Enter after spurious Exit: %v", err)
	}
}
