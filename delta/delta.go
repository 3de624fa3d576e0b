package delta

//go:generate mockgen -source delta.go -destination delta_mocks.go -package delta

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"
)

// ErrMissingReceipt is reported when the observed transaction has no mined
// receipt, i.e. it never made it into a block. The computation aborts without
// producing any per-account result.
var ErrMissingReceipt = errors.New("transaction receipt is not available; the transaction was never mined")

// ChainReader is the read-only view of a chain node required to reconstruct
// the effect of a single transaction. Both calls are pure queries of
// immutable history and may be issued concurrently. It is satisfied by
// *ethclient.Client.
type ChainReader interface {
	// BalanceAt returns the native-currency balance of the given account at
	// the given block height, in the smallest denomination.
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)

	// TransactionReceipt returns the mined receipt of the given transaction,
	// or ethereum.NotFound if the transaction is not part of any block.
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Account is a reference resolvable to exactly one on-chain address. The
// resolution may fail, e.g. for a malformed hex string; such a failure is
// fatal to the whole computation.
type Account interface {
	Address() (common.Address, error)
}

// Addr wraps an already canonical address as an Account.
func Addr(a common.Address) Account {
	return addrAccount(a)
}

type addrAccount common.Address

func (a addrAccount) Address() (common.Address, error) {
	return common.Address(a), nil
}

// Hex wraps a hex-encoded address string as an Account. The string is
// validated when the account is resolved, not when it is created.
func Hex(s string) Account {
	return hexAccount(s)
}

type hexAccount string

func (a hexAccount) Address() (common.Address, error) {
	if !common.IsHexAddress(string(a)) {
		return common.Address{}, fmt.Errorf("cannot resolve %q to an address", string(a))
	}
	return common.HexToAddress(string(a)), nil
}

// Tx is a handle of the transaction under observation. It either holds an
// already submitted transaction or defers to a pending submission which is
// awaited on first resolution.
type Tx interface {
	Resolve(ctx context.Context) (*types.Transaction, error)
}

// Submitted wraps an already submitted transaction as a Tx.
func Submitted(tx *types.Transaction) Tx {
	return submittedTx{tx}
}

type submittedTx struct {
	tx *types.Transaction
}

func (s submittedTx) Resolve(context.Context) (*types.Transaction, error) {
	if s.tx == nil {
		return nil, errors.New("nil transaction")
	}
	return s.tx, nil
}

// Deferred wraps a pending submission as a Tx. The function is invoked once
// the computation starts and must yield the submitted transaction.
func Deferred(submit func(ctx context.Context) (*types.Transaction, error)) Tx {
	return deferredTx(submit)
}

type deferredTx func(ctx context.Context) (*types.Transaction, error)

func (d deferredTx) Resolve(ctx context.Context) (*types.Transaction, error) {
	return d(ctx)
}

// Options configures the balance-delta computation.
type Options struct {
	// IncludeFee keeps the transaction fee paid by the sender inside the
	// sender's reported delta. By default the fee is compensated away so the
	// sender's delta reflects only the value transferred.
	IncludeFee bool
}

// ComputeBalanceChanges reconstructs the net balance change each listed
// account experienced through the given transaction by comparing its balance
// at the block the transaction was mined in against the block before. Unless
// opts.IncludeFee is set, the fee paid by the sender is added back to the
// sender's delta, so the result isolates the pure value transfer.
//
// The result holds one signed delta per account, in input order; duplicated
// accounts are attributed independently. The computation is all-or-nothing;
// no partial result is returned on any failure.
func ComputeBalanceChanges(ctx context.Context, chain ChainReader, tx Tx, accounts []Account, opts Options) ([]*big.Int, error) {
	if len(accounts) == 0 {
		return nil, errors.New("account list must not be empty")
	}

	signed, err := tx.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve transaction; %w", err)
	}

	receipt, err := chain.TransactionReceipt(ctx, signed.Hash())
	if errors.Is(err, ethereum.NotFound) {
		return nil, fmt.Errorf("%w (tx %v)", ErrMissingReceipt, signed.Hash())
	}
	if err != nil {
		return nil, fmt.Errorf("cannot get receipt of tx %v; %w", signed.Hash(), err)
	}
	if receipt == nil || receipt.BlockNumber == nil {
		return nil, fmt.Errorf("%w (tx %v)", ErrMissingReceipt, signed.Hash())
	}

	addresses := make([]common.Address, len(accounts))
	for i, account := range accounts {
		if addresses[i], err = account.Address(); err != nil {
			return nil, err
		}
	}

	sender, err := types.Sender(types.LatestSignerForChainID(signed.ChainId()), signed)
	if err != nil {
		return nil, fmt.Errorf("cannot recover sender of tx %v; %w", signed.Hash(), err)
	}

	after := receipt.BlockNumber
	before := new(big.Int).Sub(after, big.NewInt(1))

	// All balance queries target blocks that are already mined, so they are
	// free to run in any order. One pair of fetches per list position.
	balancesAfter := make([]*big.Int, len(addresses))
	balancesBefore := make([]*big.Int, len(addresses))
	grp, grpCtx := errgroup.WithContext(ctx)
	for i, address := range addresses {
		i, address := i, address
		grp.Go(func() error {
			var err error
			balancesAfter[i], err = chain.BalanceAt(grpCtx, address, after)
			return err
		})
		grp.Go(func() error {
			var err error
			balancesBefore[i], err = chain.BalanceAt(grpCtx, address, before)
			return err
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, fmt.Errorf("cannot get balances around block %v; %w", after, err)
	}

	fee := txFee(receipt, signed)

	deltas := make([]*big.Int, len(addresses))
	for i, address := range addresses {
		d := new(big.Int).Sub(balancesAfter[i], balancesBefore[i])
		if !opts.IncludeFee && address == sender {
			d.Add(d, fee)
		}
		deltas[i] = d
	}
	return deltas, nil
}

// txFee computes the fee charged for the transaction. The effective gas price
// of the receipt takes precedence; older nodes may not report it, in which
// case the price quoted by the transaction itself is used.
func txFee(receipt *types.Receipt, tx *types.Transaction) *big.Int {
	price := receipt.EffectiveGasPrice
	if price == nil {
		price = tx.GasPrice()
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), price)
}
