package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/chainlens/chainlens/logger"
	"github.com/chainlens/chainlens/utils"
)

func main() {
	app := &cli.App{
		Action: RunBalanceCheck,
		Name:   "ChainLens",
		Usage: "Computes the net balance change a single transaction caused for an ordered list of accounts " +
			"and checks it against the expected changes.",
		Copyright: "(c) 2026 ChainLens",
		Flags: []cli.Flag{
			&utils.RpcUrlFlag,
			&utils.TxHashFlag,
			&utils.ExpectFlag,
			&utils.IncludeFeeFlag,
			&utils.NegateFlag,

			// Config
			&logger.LogLevelFlag,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
