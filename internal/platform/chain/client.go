// Package chain talks to the bond token contract and moves native currency
// over an Ethereum-compatible JSON-RPC endpoint. It is the production
// counterpart of the in-memory token and treasury simulators.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Config holds connection and signing parameters for the chain client.
type Config struct {
	RPCURL       string
	ChainID      int64
	ContractAddr string
	// PrivateKeyHex is the operator key that owns the token contract and the
	// treasury wallet.
	PrivateKeyHex string
	// GasLimit caps each transaction. Zero means the default of 300000.
	GasLimit uint64
	// ReceiptTimeout bounds how long Send waits for a transaction to mine.
	// Zero means the default of 90 seconds.
	ReceiptTimeout time.Duration
}

const (
	defaultGasLimit       = 300_000
	defaultReceiptTimeout = 90 * time.Second
	receiptPollInterval   = 2 * time.Second
)

// Client wraps an ethclient connection with the operator key and the bond
// token contract address.
type Client struct {
	eth            *ethclient.Client
	chainID        *big.Int
	contract       common.Address
	privateKey     *ecdsa.PrivateKey
	from           common.Address
	gasLimit       uint64
	receiptTimeout time.Duration
}

// New dials the RPC endpoint and verifies the configured chain id matches
// what the node reports.
func New(ctx context.Context, cfg Config) (*Client, error) {
	keyHex := strings.TrimPrefix(cfg.PrivateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("chain: invalid private key: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}

	reported, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: query chain id: %w", err)
	}
	if reported.Int64() != cfg.ChainID {
		eth.Close()
		return nil, fmt.Errorf("chain: node reports chain id %d, config says %d", reported.Int64(), cfg.ChainID)
	}

	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = defaultGasLimit
	}
	receiptTimeout := cfg.ReceiptTimeout
	if receiptTimeout == 0 {
		receiptTimeout = defaultReceiptTimeout
	}

	return &Client{
		eth:            eth,
		chainID:        reported,
		contract:       common.HexToAddress(cfg.ContractAddr),
		privateKey:     pk,
		from:           ethcrypto.PubkeyToAddress(pk.PublicKey),
		gasLimit:       gasLimit,
		receiptTimeout: receiptTimeout,
	}, nil
}

// From returns the operator address transactions are sent from.
func (c *Client) From() common.Address {
	return c.from
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// send signs and submits a transaction, then blocks until it mines. It fails
// if the receipt reports a revert.
func (c *Client) send(ctx context.Context, to common.Address, value *big.Int, data []byte) (string, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return "", fmt.Errorf("chain: pending nonce: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("chain: suggest gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, to, value, c.gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.privateKey)
	if err != nil {
		return "", fmt.Errorf("chain: sign tx: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("chain: send tx: %w", err)
	}

	hash := signed.Hash()
	receipt, err := c.waitMined(ctx, hash)
	if err != nil {
		return "", err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("chain: tx %s reverted", hash.Hex())
	}
	return hash.Hex(), nil
}

// waitMined polls for the transaction receipt until it appears or the
// timeout elapses.
func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("chain: wait for tx %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
