package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"veribond/internal/app"
	"veribond/internal/domain"
	"veribond/internal/engine"
	"veribond/internal/repo"
	veribondsdk "veribond/sdk/go"
)

func claimCmd() *cobra.Command {
	claim := &cobra.Command{
		Use:   "claim",
		Short: "Submit, inspect and resolve claims",
	}
	claim.AddCommand(claimHashCmd())
	claim.AddCommand(claimSubmitCmd())
	claim.AddCommand(claimGetCmd())
	claim.AddCommand(claimListCmd())
	claim.AddCommand(claimResolveCmd())
	claim.AddCommand(claimSettlementCmd())
	return claim
}

func claimHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <text>",
		Short: "Print the keccak256 claim hash of a statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(crypto.Keccak256Hash([]byte(args[0])).Hex())
			return nil
		},
	}
}

func claimSubmitCmd() *cobra.Command {
	var (
		req     engine.SubmitRequest
		in      time.Duration
		at      string
		predict string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Stake on a claim as the actor's wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			predicted, err := parseBool(predict)
			if err != nil {
				return fmt.Errorf("--predict: %w", err)
			}
			req.PredictedOutcome = predicted
			req.Submitter = actor()
			switch {
			case at != "":
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--resolves-at: %w", err)
				}
				req.ResolvesAt = t
			case in > 0:
				req.ResolvesAt = time.Now().Add(in)
			default:
				return errors.New("one of --resolves-at or --resolves-in is required")
			}
			if req.ClaimHash == "" && req.ClaimText != "" {
				req.ClaimHash = crypto.Keccak256Hash([]byte(req.ClaimText)).Hex()
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				c, err := rt.Engine.Submit(ctx, req)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(c)
				}
				fmt.Printf("Submitted claim %s (stake %d, resolves %s)\n", c.ID, c.Stake, c.ResolvesAt.Format(time.RFC3339))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.AgentID, "agent", "", "agent id")
	cmd.Flags().StringVar(&req.ClaimHash, "hash", "", "0x-prefixed 32-byte claim hash")
	cmd.Flags().StringVar(&req.ClaimText, "text", "", "claim statement (hashed when --hash is omitted)")
	cmd.Flags().Int64Var(&req.Stake, "stake", 0, "stake amount")
	cmd.Flags().StringVar(&predict, "predict", "true", "predicted outcome (true/false)")
	cmd.Flags().StringVar(&at, "resolves-at", "", "resolution time (RFC3339)")
	cmd.Flags().DurationVar(&in, "resolves-in", 0, "resolution delay from now")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("stake")
	return cmd
}

func claimGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				c, err := rt.Engine.GetClaim(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
}

func claimListCmd() *cobra.Command {
	var f repo.ClaimFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List claims, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				claims, err := rt.Engine.ListClaims(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(claims)
				}
				tw := newTable("ID", "Agent", "Stake", "Predicted", "Resolves", "State", "Correct")
				for _, c := range claims {
					correct := ""
					if c.WasCorrect != nil {
						correct = fmt.Sprint(*c.WasCorrect)
					}
					tw.AppendRow(table.Row{shortID(c.ID), c.AgentID, c.Stake, c.PredictedOutcome, c.ResolvesAt.Format(time.RFC3339), c.State, correct})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.AgentID, "agent", "", "agent filter")
	cmd.Flags().StringVar(&f.State, "state", "", "state filter (submitted|resolved)")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	return cmd
}

func claimResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <id>",
		Short: "Resolve a due claim with the live resolver's outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				res, err := rt.Engine.Resolve(ctx, args[0], actor())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				printSettlement(res.Settlement)
				return nil
			})
		},
	}
}

func claimSettlementCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settlement <id>",
		Short: "Show how a resolved claim was settled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				s, err := rt.Engine.GetSettlement(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				printSettlement(s)
				return nil
			})
		},
	}
}

func printSettlement(s domain.Settlement) {
	tw := newTable("Field", "Value")
	tw.AppendRows([]table.Row{
		{"claim", s.ClaimID},
		{"policy version", s.PolicyVersion},
		{"outcome", s.Outcome},
		{"correct", s.Correct},
		{"returned", s.ReturnAmount},
		{"bonus", s.BonusAmount},
		{"slashed", s.SlashAmount},
		{"to reserve", s.RewardShare},
		{"to protocol", s.ProtocolShare},
		{"to market", s.MarketShare},
	})
	tw.Render()
}

func shortID(id string) string {
	if len(id) <= 14 {
		return id
	}
	return id[:10] + "…" + id[len(id)-4:]
}

func keeperCmd() *cobra.Command {
	keeper := &cobra.Command{Use: "keeper", Short: "Resolve due claims in bulk"}
	keeper.AddCommand(keeperRunCmd())
	return keeper
}

func keeperRunCmd() *cobra.Command {
	var (
		limit, workers int
		loop           bool
		interval       time.Duration
		serverURL      string
		apiKey         string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Settle expired assertions, then resolve every due claim",
		Long:  "Runs once, or every --interval with --loop. With --server the pass runs on a remote ledger through its API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var pass func(context.Context) (veribondsdk.KeeperRun, error)
			if serverURL != "" {
				client := veribondsdk.New(serverURL)
				client.APIKey = apiKey
				client.ActorID = actor()
				pass = func(ctx context.Context) (veribondsdk.KeeperRun, error) {
					return client.RunKeeper(ctx, limit, workers)
				}
				return runKeeper(ctx, pass, loop, interval)
			}
			return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
				if limit == 0 {
					limit = rt.Config.Keeper.Batch
				}
				if workers == 0 {
					workers = rt.Config.Keeper.Workers
				}
				pass = func(ctx context.Context) (veribondsdk.KeeperRun, error) {
					var out veribondsdk.KeeperRun
					assertions, err := rt.Engine.SettleExpiredAssertions(ctx, limit, actor())
					if err != nil {
						return out, err
					}
					claims, err := rt.Engine.ResolveDue(ctx, limit, workers, actor())
					if err != nil {
						return out, err
					}
					out.Assertions = toSDKAssertions(assertions)
					out.Claims = toSDKResults(claims)
					return out, nil
				}
				return runKeeper(ctx, pass, loop, interval)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum items per pass (default from config)")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent resolutions (default from config)")
	cmd.Flags().BoolVar(&loop, "loop", false, "keep running until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "delay between passes with --loop")
	cmd.Flags().StringVar(&serverURL, "server", "", "run against a remote ledger API")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key for --server")
	return cmd
}

func runKeeper(ctx context.Context, pass func(context.Context) (veribondsdk.KeeperRun, error), loop bool, interval time.Duration) error {
	for {
		res, err := pass(ctx)
		if err != nil {
			return err
		}
		if viper.GetBool("json") {
			if err := printJSON(res); err != nil {
				return err
			}
		} else {
			printSettled(res.Assertions)
			printDue(res.Claims)
		}
		if !loop {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func toSDKResults(in []engine.DueResult) []veribondsdk.DueResult {
	out := make([]veribondsdk.DueResult, 0, len(in))
	for _, r := range in {
		out = append(out, veribondsdk.DueResult{ClaimID: r.ClaimID, Status: r.Status, Correct: r.Correct, Error: r.Error})
	}
	return out
}

func toSDKAssertions(in []engine.AssertionSettleResult) []veribondsdk.AssertionSettleResult {
	out := make([]veribondsdk.AssertionSettleResult, 0, len(in))
	for _, r := range in {
		out = append(out, veribondsdk.AssertionSettleResult{
			ClaimHash: r.ClaimHash, AssertionID: r.AssertionID, Status: r.Status, Outcome: r.Outcome, Error: r.Error,
		})
	}
	return out
}

func printDue(results []veribondsdk.DueResult) {
	counts := map[string]int{}
	for _, r := range results {
		counts[r.Status]++
		if r.Status != "resolved" {
			fmt.Printf("claim %s %s: %s\n", shortID(r.ClaimID), r.Status, r.Error)
		}
	}
	fmt.Printf("claims: %d resolved, %d skipped, %d failed\n", counts["resolved"], counts["skipped"], counts["failed"])
}

func printSettled(results []veribondsdk.AssertionSettleResult) {
	counts := map[string]int{}
	for _, r := range results {
		counts[r.Status]++
		switch {
		case r.Status != "settled":
			fmt.Printf("assertion %s %s: %s\n", shortID(r.ClaimHash), r.Status, r.Error)
		case r.Outcome != nil:
			fmt.Printf("assertion %s settled: outcome %s\n", shortID(r.ClaimHash), yesNo(*r.Outcome))
		}
	}
	fmt.Printf("assertions: %d settled, %d skipped, %d failed\n", counts["settled"], counts["skipped"], counts["failed"])
}

func auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Check escrow against open stakes and reserves",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				rep, err := rt.Engine.Audit(ctx)
				if err != nil {
					return err
				}
				if err := printJSONOrTable(rep); err != nil {
					return err
				}
				if !rep.Balanced {
					return errors.New("escrow does not match open stakes plus reserves")
				}
				return nil
			})
		},
	}
}

func agentCmd() *cobra.Command {
	agent := &cobra.Command{Use: "agent", Short: "Agent accounts, wallets and reserves"}
	agent.AddCommand(&cobra.Command{
		Use:   "show <agent-id>",
		Short: "Show an agent account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				a, err := rt.Engine.GetAgent(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	})
	agent.AddCommand(&cobra.Command{
		Use:   "accuracy <agent-id>",
		Short: "Correct and total resolved claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				correct, total, err := rt.Engine.AgentAccuracy(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"agent_id": args[0], "correct": correct, "total": total})
				}
				fmt.Printf("%s: %d/%d correct\n", args[0], correct, total)
				return nil
			})
		},
	})
	agent.AddCommand(&cobra.Command{
		Use:   "bind-wallet <agent-id> <wallet>",
		Short: "Bind the wallet allowed to stake for an agent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Engine.BindWallet(ctx, actor(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Printf("Bound %s to %s\n", args[1], args[0])
				return nil
			})
		},
	})
	agent.AddCommand(&cobra.Command{
		Use:   "fund-reserve <agent-id> <amount>",
		Short: "Move funds from the actor's balance into an agent's reward reserve",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				a, err := rt.Engine.FundReserve(ctx, args[0], actor(), amount)
				if err != nil {
					return err
				}
				fmt.Printf("Reserve of %s is now %d\n", a.AgentID, a.RewardReserve)
				return nil
			})
		},
	})
	return agent
}

func accountCmd() *cobra.Command {
	account := &cobra.Command{Use: "account", Short: "Account balances"}
	account.AddCommand(&cobra.Command{
		Use:   "balance <account>",
		Short: "Show an account balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				b, err := rt.Engine.Balance(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"account": args[0], "balance": b})
				}
				fmt.Printf("%s: %d\n", args[0], b)
				return nil
			})
		},
	})
	account.AddCommand(&cobra.Command{
		Use:   "deposit <account> <amount>",
		Short: "Credit an account (operator)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				b, err := rt.Engine.Deposit(ctx, actor(), args[0], amount)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %d\n", args[0], b)
				return nil
			})
		},
	})
	return account
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}
