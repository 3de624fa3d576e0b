package utils

import (
	"github.com/urfave/cli/v2"
)

// Command line options of the balance-check command.
var (
	RpcUrlFlag = cli.StringFlag{
		Name:     "rpc",
		Aliases:  []string{"r"},
		Usage:    "JSON-RPC endpoint of the chain node; historical balances need an archive node",
		Required: true,
	}
	TxHashFlag = cli.StringFlag{
		Name:     "tx",
		Aliases:  []string{"t"},
		Usage:    "hash of the observed transaction",
		Required: true,
	}
	ExpectFlag = cli.StringSliceFlag{
		Name:     "expect",
		Aliases:  []string{"e"},
		Usage:    "expected balance change given as <address>=<wei>; repeatable, the order of occurrences matters",
		Required: true,
	}
	IncludeFeeFlag = cli.BoolFlag{
		Name:  "include-fee",
		Usage: "keep the fee paid by the sender inside the sender's reported change instead of compensating it away",
	}
	NegateFlag = cli.BoolFlag{
		Name:  "negate",
		Usage: "invert the check; it fails if every account changed exactly as given",
	}
)
