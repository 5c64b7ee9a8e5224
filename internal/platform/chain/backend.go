package chain

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/bondledger/internal/token"
)

// Method selectors for the bond token contract, computed from the canonical
// signatures. All arguments are static types, so calldata is the selector
// followed by 32-byte words.
var (
	mintSelector     = selector("mint(uint256,uint256,address)")
	transferSelector = selector("transfer(uint256,address,uint256)")
	burnSelector     = selector("burn(uint256,address,uint256)")
)

func selector(sig string) []byte {
	return ethcrypto.Keccak256([]byte(sig))[:4]
}

// Backend implements token.Backend against the on-chain bond token contract.
// Each bond's token class is the contract token id equal to the bond id; the
// handle is that id in decimal.
type Backend struct {
	client *Client
}

// NewBackend creates a Backend over an established chain client.
func NewBackend(client *Client) *Backend {
	return &Backend{client: client}
}

// Mint creates units of the bond's token class. Class metadata (name and
// symbol) lives off-chain; the contract only tracks balances per token id.
// A zero To mints to the contract-held engine reserve.
func (b *Backend) Mint(ctx context.Context, spec token.MintSpec) (string, error) {
	id, err := tokenID(spec.Handle, spec.BondID)
	if err != nil {
		return "", err
	}

	data := calldata(mintSelector,
		wordFromInt(id),
		wordFromInt(spec.Units),
		wordFromAddress(spec.To),
	)
	if _, err := b.client.send(ctx, b.client.contract, nil, data); err != nil {
		return "", fmt.Errorf("chain: mint bond %d: %w", id, err)
	}
	return strconv.FormatInt(id, 10), nil
}

// Transfer moves units from the engine reserve to the recipient.
func (b *Backend) Transfer(ctx context.Context, handle string, to common.Address, units int64) error {
	id, err := parseHandle(handle)
	if err != nil {
		return err
	}

	data := calldata(transferSelector,
		wordFromInt(id),
		wordFromAddress(to),
		wordFromInt(units),
	)
	if _, err := b.client.send(ctx, b.client.contract, nil, data); err != nil {
		return fmt.Errorf("chain: transfer %d units of bond %d: %w", units, id, err)
	}
	return nil
}

// Burn destroys units held by from.
func (b *Backend) Burn(ctx context.Context, handle string, from common.Address, units int64) error {
	id, err := parseHandle(handle)
	if err != nil {
		return err
	}

	data := calldata(burnSelector,
		wordFromInt(id),
		wordFromAddress(from),
		wordFromInt(units),
	)
	if _, err := b.client.send(ctx, b.client.contract, nil, data); err != nil {
		return fmt.Errorf("chain: burn %d units of bond %d: %w", units, id, err)
	}
	return nil
}

// tokenID resolves the contract token id for a mint: the existing handle
// when re-minting, otherwise the bond id.
func tokenID(handle string, bondID int64) (int64, error) {
	if handle == "" {
		return bondID, nil
	}
	return parseHandle(handle)
}

func parseHandle(handle string) (int64, error) {
	id, err := strconv.ParseInt(handle, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("chain: token handle %q: %w", handle, err)
	}
	return id, nil
}

func calldata(sel []byte, words ...[]byte) []byte {
	out := make([]byte, 0, len(sel)+32*len(words))
	out = append(out, sel...)
	for _, w := range words {
		out = append(out, w...)
	}
	return out
}

func wordFromInt(v int64) []byte {
	return common.LeftPadBytes(big.NewInt(v).Bytes(), 32)
}

func wordFromAddress(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}

var _ token.Backend = (*Backend)(nil)
