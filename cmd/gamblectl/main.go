/*
main.go - Command line client for the gamble ledger

PURPOSE:
  Runs the same engine operations as the HTTP API directly against the
  configured store. Useful at the table without a browser and for scripting.

COMMANDS:
  start NAME...          Start a game with the given roster
  round                  Settle a round (--loss, --win, --bonus)
  preview                Show what a round would do without saving it
  undo ID                Reverse a round
  history                List rounds with their index
  standings              Balances, highest first
  verify                 Replay the ledger and report drift
  reset                  Wipe players and history

EXAMPLES:
  gamblectl start Hoa Minh Lan
  gamblectl round --loss "Hoa 100"
  gamblectl round --win "Minh 60" --bonus Lan=10 --bonus Hoa=-10
  gamblectl --config ./config.yaml history
*/
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
