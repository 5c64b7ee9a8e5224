package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/bondledger/internal/treasury"
)

// Transferor implements treasury.Transferor with plain native-currency
// transactions from the operator wallet.
type Transferor struct {
	client *Client
}

// NewTransferor creates a Transferor over an established chain client.
func NewTransferor(client *Client) *Transferor {
	return &Transferor{client: client}
}

// Transfer sends amount (in the smallest native denomination) to the
// recipient and returns the transaction hash.
func (t *Transferor) Transfer(ctx context.Context, to common.Address, amount int64) (string, error) {
	hash, err := t.client.send(ctx, to, big.NewInt(amount), nil)
	if err != nil {
		return "", fmt.Errorf("chain: native transfer to %s: %w", to.Hex(), err)
	}
	return hash, nil
}

var _ treasury.Transferor = (*Transferor)(nil)
