package utils

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/chainlens/chainlens/delta"
	"github.com/chainlens/chainlens/logger"
)

// Config holds one fully parsed invocation of the balance-check command.
type Config struct {
	RpcUrl     string
	TxHash     common.Hash
	Accounts   []delta.Account
	Expected   []*big.Int
	IncludeFee bool
	Negate     bool
	LogLevel   string
}

// NewConfig parses and validates the command line options. The order of the
// --expect occurrences defines the account order of the check.
func NewConfig(ctx *cli.Context) (*Config, error) {
	hash, err := parseTxHash(ctx.String(TxHashFlag.Name))
	if err != nil {
		return nil, err
	}

	pairs := ctx.StringSlice(ExpectFlag.Name)
	if len(pairs) == 0 {
		return nil, fmt.Errorf("at least one --%s is required", ExpectFlag.Name)
	}

	cfg := Config{
		RpcUrl:     ctx.String(RpcUrlFlag.Name),
		TxHash:     hash,
		IncludeFee: ctx.Bool(IncludeFeeFlag.Name),
		Negate:     ctx.Bool(NegateFlag.Name),
		LogLevel:   ctx.String(logger.LogLevelFlag.Name),
	}
	for _, pair := range pairs {
		account, change, err := ParseExpectation(pair)
		if err != nil {
			return nil, err
		}
		cfg.Accounts = append(cfg.Accounts, account)
		cfg.Expected = append(cfg.Expected, change)
	}
	return &cfg, nil
}

// ParseExpectation splits an <address>=<wei> pair into the account reference
// and the expected signed change in the smallest denomination.
func ParseExpectation(pair string) (delta.Account, *big.Int, error) {
	address, amount, found := strings.Cut(pair, "=")
	if !found {
		return nil, nil, fmt.Errorf("invalid expectation %q; use <address>=<wei>", pair)
	}
	if !common.IsHexAddress(address) {
		return nil, nil, fmt.Errorf("invalid address %q in expectation %q", address, pair)
	}
	change, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, nil, fmt.Errorf("invalid wei amount %q in expectation %q", amount, pair)
	}
	return delta.Addr(common.HexToAddress(address)), change, nil
}

// parseTxHash validates the textual form of a transaction hash.
func parseTxHash(s string) (common.Hash, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if len(trimmed) != 2*common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid transaction hash %q", s)
	}
	for _, c := range trimmed {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return common.Hash{}, fmt.Errorf("invalid transaction hash %q", s)
		}
	}
	return common.HexToHash(s), nil
}
