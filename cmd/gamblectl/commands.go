package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/warp/gamble-ledger/config"
	"github.com/warp/gamble-ledger/engine"
	"github.com/warp/gamble-ledger/pkg/logging"
	"github.com/warp/gamble-ledger/store"
)

func newApp() *cli.App {
	roundFlags := []cli.Flag{
		&cli.StringFlag{Name: "loss", Aliases: []string{"l"}, Usage: `losses as text, e.g. "Hoa 100 Minh 50"`},
		&cli.StringFlag{Name: "win", Aliases: []string{"w"}, Usage: `wins as text, e.g. "Lan 80"`},
		&cli.StringSliceFlag{Name: "bonus", Aliases: []string{"b"}, Usage: "extra delta NAME=AMOUNT (repeatable)"},
	}

	return &cli.App{
		Name:  "gamblectl",
		Usage: "track balances of a card game from the command line",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "config file path"},
		},
		Commands: []*cli.Command{
			{
				Name:      "start",
				Usage:     "start a game with the given players",
				ArgsUsage: "NAME...",
				Action: withController(func(c *cli.Context, ctrl *engine.Controller) error {
					players, err := ctrl.CreateRoster(c.Context, c.Args().Slice())
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "Game started with %d players\n", len(players))
					return printPlayers(c.App.Writer, players)
				}),
			},
			{
				Name:  "round",
				Usage: "settle a round",
				Flags: roundFlags,
				Action: withController(func(c *cli.Context, ctrl *engine.Controller) error {
					in, err := roundInput(c)
					if err != nil {
						return err
					}
					record, err := ctrl.SettleRound(c.Context, in)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "Round %d settled at %s\n", record.ID, record.CreatedAt)
					return printDetails(c.App.Writer, record.Details, record.Bonus, record.Residue, record.BonusImbalance())
				}),
			},
			{
				Name:  "preview",
				Usage: "show the effect of a round without saving it",
				Flags: roundFlags,
				Action: withController(func(c *cli.Context, ctrl *engine.Controller) error {
					in, err := roundInput(c)
					if err != nil {
						return err
					}
					s, err := ctrl.Preview(c.Context, in)
					if err != nil {
						return err
					}
					return printDetails(c.App.Writer, s.Details, s.Bonus, s.Residue, s.BonusImbalance)
				}),
			},
			{
				Name:      "undo",
				Usage:     "reverse a round",
				ArgsUsage: "ID",
				Action: withController(func(c *cli.Context, ctrl *engine.Controller) error {
					if c.NArg() != 1 {
						return fmt.Errorf("undo takes exactly one round id")
					}
					id, err := strconv.ParseInt(c.Args().First(), 10, 64)
					if err != nil || id <= 0 {
						return fmt.Errorf("invalid round id %q", c.Args().First())
					}
					reversed, err := ctrl.ReverseRound(c.Context, engine.RoundID(id))
					if err != nil {
						return err
					}
					if !reversed {
						fmt.Fprintf(c.App.Writer, "Round %d not found, nothing to undo\n", id)
						return nil
					}
					fmt.Fprintf(c.App.Writer, "Round %d reversed\n", id)
					return nil
				}),
			},
			{
				Name:  "history",
				Usage: "list settled rounds",
				Action: withController(func(c *cli.Context, ctrl *engine.Controller) error {
					rounds, err := ctrl.History(c.Context)
					if err != nil {
						return err
					}
					tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
					fmt.Fprintln(tw, "#\tID\tTIME\tINPUT\tDELTAS")
					for i, r := range rounds {
						fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", i+1, r.ID, r.CreatedAt, r.RawInput, formatDetails(r.Details))
					}
					return tw.Flush()
				}),
			},
			{
				Name:  "standings",
				Usage: "show balances, highest first",
				Action: withController(func(c *cli.Context, ctrl *engine.Controller) error {
					players, err := ctrl.Standings(c.Context)
					if err != nil {
						return err
					}
					return printPlayers(c.App.Writer, players)
				}),
			},
			{
				Name:  "verify",
				Usage: "replay the ledger and compare with stored balances",
				Action: withController(func(c *cli.Context, ctrl *engine.Controller) error {
					result, err := ctrl.Reconcile(c.Context)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "players=%d rounds=%d balance_sum=%d residue_sum=%d bonus_imbalance_sum=%d\n",
						result.Players, result.Rounds, result.BalanceSum, result.ResidueSum, result.BonusImbalanceSum)
					for _, d := range result.Drift {
						fmt.Fprintf(c.App.Writer, "drift %s: stored %d, ledger %d\n", d.Name, d.Stored, d.Replayed)
					}
					if !result.Balanced() {
						return fmt.Errorf("ledger does not reconcile")
					}
					fmt.Fprintln(c.App.Writer, "OK")
					return nil
				}),
			},
			{
				Name:  "reset",
				Usage: "wipe players and history",
				Action: withController(func(c *cli.Context, ctrl *engine.Controller) error {
					if err := ctrl.Reset(c.Context); err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, "Game reset")
					return nil
				}),
			},
		},
	}
}

// withController opens the configured store around one command.
func withController(fn func(*cli.Context, *engine.Controller) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return err
		}
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		logger := logging.New(c.App.ErrWriter, cfg.Log.Level)

		ctx := c.Context
		if ctx == nil {
			ctx = context.Background()
		}
		s, closeStore, err := store.Open(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		ctrl := engine.NewController(s,
			engine.WithLogger(logger),
			engine.WithLocation(loc),
			engine.WithTimeFormat(cfg.Display.TimeFormat),
		)
		return fn(c, ctrl)
	}
}

func roundInput(c *cli.Context) (engine.RoundInput, error) {
	bonuses, err := parseBonuses(c.StringSlice("bonus"))
	if err != nil {
		return engine.RoundInput{}, err
	}
	return engine.RoundInput{
		Losses:  c.String("loss"),
		Wins:    c.String("win"),
		Bonuses: bonuses,
	}, nil
}

// parseBonuses reads NAME=AMOUNT pairs. The split is on the last '=' so
// names may contain spaces.
func parseBonuses(values []string) ([]engine.Bonus, error) {
	bonuses := make([]engine.Bonus, 0, len(values))
	for _, v := range values {
		i := strings.LastIndexByte(v, '=')
		if i < 0 {
			return nil, fmt.Errorf("invalid bonus %q: want NAME=AMOUNT", v)
		}
		name := engine.CleanName(v[:i])
		if name == "" {
			return nil, fmt.Errorf("invalid bonus %q: missing name", v)
		}
		amount, err := strconv.ParseInt(strings.TrimSpace(v[i+1:]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bonus %q: %w", v, err)
		}
		bonuses = append(bonuses, engine.Bonus{Name: name, Amount: amount})
	}
	return bonuses, nil
}

func printPlayers(w io.Writer, players []engine.Player) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PLAYER\tBALANCE")
	for _, p := range players {
		fmt.Fprintf(tw, "%s\t%+d\n", p.Name, p.Balance)
	}
	return tw.Flush()
}

func printDetails(w io.Writer, details []engine.Detail, bonus []engine.Bonus, residue, bonusImbalance int64) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PLAYER\tDELTA\tKIND")
	for _, d := range details {
		fmt.Fprintf(tw, "%s\t%+d\t%s\n", d.Name, d.Amount, d.Kind)
	}
	for _, b := range bonus {
		fmt.Fprintf(tw, "%s\t%+d\tbonus\n", b.Name, b.Amount)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if residue != 0 {
		fmt.Fprintf(w, "rounding residue: %+d\n", residue)
	}
	if bonusImbalance != 0 {
		fmt.Fprintf(w, "unpaired bonus: %+d\n", bonusImbalance)
	}
	return nil
}

func formatDetails(details []engine.Detail) string {
	parts := make([]string, len(details))
	for i, d := range details {
		parts[i] = fmt.Sprintf("%s %+d", d.Name, d.Amount)
	}
	return strings.Join(parts, ", ")
}
