package delta

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/mock/gomock"
)

var (
	testChainID = big.NewInt(1337)
	recipient   = common.HexToAddress("0x2000000000000000000000000000000000000002")
	bystander   = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

// transfer builds a signed legacy transaction sending the given value to the
// recipient, and returns it together with the recovered sender address.
func transfer(t *testing.T, value int64, gasPrice int64) (*types.Transaction, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("cannot generate key; %v", err)
	}
	signer := types.LatestSignerForChainID(testChainID)
	tx, err := types.SignNewTx(key, signer, &types.LegacyTx{
		Nonce:    0,
		To:       &recipient,
		Value:    big.NewInt(value),
		Gas:      21_000,
		GasPrice: big.NewInt(gasPrice),
	})
	if err != nil {
		t.Fatalf("cannot sign transaction; %v", err)
	}
	return tx, crypto.PubkeyToAddress(key.PublicKey)
}

func expectBalances(chain *MockChainReader, address common.Address, block int64, before, after int64) {
	chain.EXPECT().
		BalanceAt(gomock.Any(), address, big.NewInt(block)).
		Return(big.NewInt(after), nil).
		AnyTimes()
	chain.EXPECT().
		BalanceAt(gomock.Any(), address, big.NewInt(block-1)).
		Return(big.NewInt(before), nil).
		AnyTimes()
}

func TestComputeBalanceChanges_SenderFeeIsCompensatedByDefault(t *testing.T) {
	ctrl := gomock.NewController(t)
	chain := NewMockChainReader(ctrl)

	// sender holds 100 and pays a fee of 5; its wallet drops to 97 while
	// the recipient picks up 8. The compensated delta is +2.
	tx, sender := transfer(t, 8, 1)
	chain.EXPECT().TransactionReceipt(gomock.Any(), tx.Hash()).Return(&types.Receipt{
		BlockNumber:       big.NewInt(10),
		GasUsed:           5,
		EffectiveGasPrice: big.NewInt(1),
	}, nil)
	expectBalances(chain, sender, 10, 100, 97)
	expectBalances(chain, recipient, 10, 0, 8)

	deltas, err := ComputeBalanceChanges(context.Background(), chain, Submitted(tx),
		[]Account{Addr(sender), Addr(recipient)}, Options{})
	if err != nil {
		t.Fatalf("computation failed; %v", err)
	}

	if got, want := deltas[0], big.NewInt(2); got.Cmp(want) != 0 {
		t.Errorf("unexpected sender delta, got %v, want %v", got, want)
	}
	if got, want := deltas[1], big.NewInt(8); got.Cmp(want) != 0 {
		t.Errorf("unexpected recipient delta, got %v, want %v", got, want)
	}
}

func TestComputeBalanceChanges_IncludeFeeReportsRawWalletChange(t *testing.T) {
	ctrl := gomock.NewController(t)
	chain := NewMockChainReader(ctrl)

	tx, sender := transfer(t, 8, 1)
	chain.EXPECT().TransactionReceipt(gomock.Any(), tx.Hash()).Return(&types.Receipt{
		BlockNumber:       big.NewInt(10),
		GasUsed:           5,
		EffectiveGasPrice: big.NewInt(1),
	}, nil)
	expectBalances(chain, sender, 10, 100, 97)
	expectBalances(chain, recipient, 10, 0, 8)

	deltas, err := ComputeBalanceChanges(context.Background(), chain, Submitted(tx),
		[]Account{Addr(sender), Addr(recipient)}, Options{IncludeFee: true})
	if err != nil {
		t.Fatalf("computation failed; %v", err)
	}

	if got, want := deltas[0], big.NewInt(-3); got.Cmp(want) != 0 {
		t.Errorf("unexpected sender delta, got %v, want %v", got, want)
	}
	if got, want := deltas[1], big.NewInt(8); got.Cmp(want) != 0 {
		t.Errorf("unexpected recipient delta, got %v, want %v", got, want)
	}
}

func TestComputeBalanceChanges_DuplicatedSenderGetsFeeAtEveryPosition(t *testing.T) {
	ctrl := gomock.NewController(t)
	chain := NewMockChainReader(ctrl)

	tx, sender := transfer(t, 8, 1)
	chain.EXPECT().TransactionReceipt(gomock.Any(), tx.Hash()).Return(&types.Receipt{
		BlockNumber:       big.NewInt(10),
		GasUsed:           5,
		EffectiveGasPrice: big.NewInt(1),
	}, nil)
	expectBalances(chain, sender, 10, 100, 87)
	expectBalances(chain, bystander, 10, 50, 50)

	deltas, err := ComputeBalanceChanges(context.Background(), chain, Submitted(tx),
		[]Account{Addr(sender), Addr(bystander), Addr(sender)}, Options{})
	if err != nil {
		t.Fatalf("computation failed; %v", err)
	}

	if got, want := len(deltas), 3; got != want {
		t.Fatalf("unexpected number of deltas, got %d, want %d", got, want)
	}
	for _, i := range []int{0, 2} {
		if got, want := deltas[i], big.NewInt(-8); got.Cmp(want) != 0 {
			t.Errorf("unexpected sender delta at position %d, got %v, want %v", i, got, want)
		}
	}
	if got, want := deltas[1], big.NewInt(0); got.Cmp(want) != 0 {
		t.Errorf("unexpected bystander delta, got %v, want %v", got, want)
	}
}

func TestComputeBalanceChanges_FallsBackToQuotedGasPrice(t *testing.T) {
	ctrl := gomock.NewController(t)
	chain := NewMockChainReader(ctrl)

	// the receipt carries no effective gas price; the fee must be derived
	// from the price quoted by the transaction (3 wei per gas unit).
	tx, sender := transfer(t, 8, 3)
	chain.EXPECT().TransactionReceipt(gomock.Any(), tx.Hash()).Return(&types.Receipt{
		BlockNumber: big.NewInt(10),
		GasUsed:     5,
	}, nil)
	expectBalances(chain, sender, 10, 100, 77) // 8 sent + 15 fee

	deltas, err := ComputeBalanceChanges(context.Background(), chain, Submitted(tx),
		[]Account{Addr(sender)}, Options{})
	if err != nil {
		t.Fatalf("computation failed; %v", err)
	}
	if got, want := deltas[0], big.NewInt(-8); got.Cmp(want) != 0 {
		t.Errorf("unexpected sender delta, got %v, want %v", got, want)
	}
}

func TestComputeBalanceChanges_MissingReceiptIsFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	chain := NewMockChainReader(ctrl)

	tx, sender := transfer(t, 8, 1)
	chain.EXPECT().TransactionReceipt(gomock.Any(), tx.Hash()).Return(nil, ethereum.NotFound)

	deltas, err := ComputeBalanceChanges(context.Background(), chain, Submitted(tx),
		[]Account{Addr(sender)}, Options{})
	if !errors.Is(err, ErrMissingReceipt) {
		t.Fatalf("expected ErrMissingReceipt, got %v", err)
	}
	if deltas != nil {
		t.Errorf("no partial result expected, got %v", deltas)
	}
}

func TestComputeBalanceChanges_UnresolvableAccountIsFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	chain := NewMockChainReader(ctrl)

	tx, _ := transfer(t, 8, 1)
	chain.EXPECT().TransactionReceipt(gomock.Any(), tx.Hash()).Return(&types.Receipt{
		BlockNumber:       big.NewInt(10),
		GasUsed:           5,
		EffectiveGasPrice: big.NewInt(1),
	}, nil)

	_, err := ComputeBalanceChanges(context.Background(), chain, Submitted(tx),
		[]Account{Hex("not-an-address")}, Options{})
	if err == nil {
		t.Fatal("resolution failure must abort the computation")
	}
}

func TestComputeBalanceChanges_EmptyAccountListIsRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	chain := NewMockChainReader(ctrl)

	tx, _ := transfer(t, 8, 1)
	if _, err := ComputeBalanceChanges(context.Background(), chain, Submitted(tx), nil, Options{}); err == nil {
		t.Fatal("empty account list must be rejected")
	}
}

func TestComputeBalanceChanges_FailedBalanceFetchAbortsWithoutResult(t *testing.T) {
	ctrl := gomock.NewController(t)
	chain := NewMockChainReader(ctrl)

	tx, sender := transfer(t, 8, 1)
	chain.EXPECT().TransactionReceipt(gomock.Any(), tx.Hash()).Return(&types.Receipt{
		BlockNumber:       big.NewInt(10),
		GasUsed:           5,
		EffectiveGasPrice: big.NewInt(1),
	}, nil)

	nodeErr := fmt.Errorf("node is gone")
	chain.EXPECT().
		BalanceAt(gomock.Any(), sender, gomock.Any()).
		Return(nil, nodeErr).
		AnyTimes()

	deltas, err := ComputeBalanceChanges(context.Background(), chain, Submitted(tx),
		[]Account{Addr(sender)}, Options{})
	if !errors.Is(err, nodeErr) {
		t.Fatalf("expected fetch error to propagate, got %v", err)
	}
	if deltas != nil {
		t.Errorf("no partial result expected, got %v", deltas)
	}
}

func TestComputeBalanceChanges_DeferredSubmissionIsAwaited(t *testing.T) {
	ctrl := gomock.NewController(t)
	chain := NewMockChainReader(ctrl)

	tx, sender := transfer(t, 8, 1)
	submitted := false
	handle := Deferred(func(context.Context) (*types.Transaction, error) {
		submitted = true
		return tx, nil
	})

	chain.EXPECT().TransactionReceipt(gomock.Any(), tx.Hash()).Return(&types.Receipt{
		BlockNumber:       big.NewInt(10),
		GasUsed:           5,
		EffectiveGasPrice: big.NewInt(1),
	}, nil)
	expectBalances(chain, sender, 10, 100, 87)

	if _, err := ComputeBalanceChanges(context.Background(), chain, handle,
		[]Account{Addr(sender)}, Options{}); err != nil {
		t.Fatalf("computation failed; %v", err)
	}
	if !submitted {
		t.Error("pending submission was never awaited")
	}
}

func TestComputeBalanceChanges_RepeatedRunsYieldIdenticalDeltas(t *testing.T) {
	ctrl := gomock.NewController(t)
	chain := NewMockChainReader(ctrl)

	tx, sender := transfer(t, 8, 1)
	chain.EXPECT().TransactionReceipt(gomock.Any(), tx.Hash()).Return(&types.Receipt{
		BlockNumber:       big.NewInt(10),
		GasUsed:           5,
		EffectiveGasPrice: big.NewInt(1),
	}, nil).Times(2)
	expectBalances(chain, sender, 10, 100, 87)
	expectBalances(chain, recipient, 10, 0, 8)

	accounts := []Account{Addr(sender), Addr(recipient)}
	first, err := ComputeBalanceChanges(context.Background(), chain, Submitted(tx), accounts, Options{})
	if err != nil {
		t.Fatalf("first computation failed; %v", err)
	}
	second, err := ComputeBalanceChanges(context.Background(), chain, Submitted(tx), accounts, Options{})
	if err != nil {
		t.Fatalf("second computation failed; %v", err)
	}
	for i := range first {
		if first[i].Cmp(second[i]) != 0 {
			t.Errorf("delta at position %d differs between runs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestHexAccount_ResolvesChecksummedAndLowercaseForms(t *testing.T) {
	want := common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	for _, form := range []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
	} {
		got, err := Hex(form).Address()
		if err != nil {
			t.Fatalf("cannot resolve %q; %v", form, err)
		}
		if got != want {
			t.Errorf("unexpected address for %q, got %v, want %v", form, got, want)
		}
	}
}
