package main

import (
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/chainlens/chainlens/delta"
	"github.com/chainlens/chainlens/expect"
	"github.com/chainlens/chainlens/logger"
	"github.com/chainlens/chainlens/rpc"
	"github.com/chainlens/chainlens/utils"
)

// RunBalanceCheck is the entry point of the balance-check command. It loads
// the observed transaction from the node, computes the per-account balance
// deltas and checks them against the expectations given on the command line.
func RunBalanceCheck(ctx *cli.Context) error {
	cfg, err := utils.NewConfig(ctx)
	if err != nil {
		return err
	}
	log := logger.NewLogger(cfg.LogLevel, "chainlens")

	client, err := rpc.Connect(ctx.Context, cfg.RpcUrl, log)
	if err != nil {
		return err
	}
	defer client.Close()

	tx, pending, err := client.TransactionByHash(ctx.Context, cfg.TxHash)
	if err != nil {
		return fmt.Errorf("cannot load transaction %v; %w", cfg.TxHash, err)
	}
	if pending {
		return fmt.Errorf("transaction %v is still pending; %w", cfg.TxHash, delta.ErrMissingReceipt)
	}

	opts := delta.Options{IncludeFee: cfg.IncludeFee}
	deltas, err := delta.ComputeBalanceChanges(ctx.Context, client, delta.Submitted(tx), cfg.Accounts, opts)
	if err != nil {
		return err
	}

	addresses := make([]common.Address, len(cfg.Accounts))
	for i, account := range cfg.Accounts {
		addresses[i], _ = account.Address()
	}

	verdict := expect.Evaluate(addresses, deltas, cfg.Expected, cfg.Negate)
	printReport(ctx.App.Writer, addresses, deltas, cfg.Expected, verdict)

	var mismatch *expect.MismatchError
	if errors.As(verdict, &mismatch) {
		log.Errorf("check failed:\n%v", mismatch)
		return cli.Exit("FAIL", 1)
	}
	log.Noticef("check passed for %d account(s)", len(addresses))
	return nil
}

// printReport renders the per-account comparison as a table.
func printReport(w io.Writer, addresses []common.Address, actual, expected []*big.Int, verdict error) {
	pass := color.New(color.FgGreen, color.Bold).Sprintf("ok")
	fail := color.New(color.FgRed, color.Bold).Sprintf("differs")
	m := message.NewPrinter(language.English)

	tbl := tablewriter.NewWriter(w)
	tbl.SetHeader([]string{"#", "Account", "Expected [wei]", "Actual [wei]", ""})
	tbl.SetBorder(true)

	for i := range addresses {
		state := pass
		if actual[i].Cmp(expected[i]) != 0 {
			state = fail
		}
		tbl.Append([]string{
			expect.Ordinal(i + 1),
			addresses[i].Hex(),
			m.Sprintf("%v", expected[i]),
			m.Sprintf("%v", actual[i]),
			state,
		})
	}
	tbl.Render()

	if verdict != nil {
		_, _ = fmt.Fprintln(w, verdict.Error())
	}
}
