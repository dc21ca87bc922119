package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"veribond/internal/app"
	"veribond/internal/domain"
	"veribond/internal/engine"
	"veribond/internal/engine/auth"
	"veribond/internal/repo"
	"veribond/internal/resolver"
)

func policyCmd() *cobra.Command {
	policy := &cobra.Command{Use: "policy", Short: "Show and change the versioned policy"}
	policy.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the current policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.CurrentPolicy(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	})
	policy.AddCommand(policyHistoryCmd())
	policy.AddCommand(policySetter("set-min-stake <amount>", "Set the minimum stake", 1,
		func(ctx context.Context, e engine.Engine, args []int64) (domain.Policy, error) {
			return e.SetMinStake(ctx, actor(), args[0])
		}))
	policy.AddCommand(policySetter("set-slash-fraction <percent>", "Set the slashed percentage of a wrong stake", 1,
		func(ctx context.Context, e engine.Engine, args []int64) (domain.Policy, error) {
			return e.SetSlashFraction(ctx, actor(), args[0])
		}))
	policy.AddCommand(policySetter("set-slash-split <reward-bps> <protocol-bps> <market-bps>", "Set how slashed funds are split", 3,
		func(ctx context.Context, e engine.Engine, args []int64) (domain.Policy, error) {
			return e.SetSlashSplit(ctx, actor(), domain.SlashSplit{RewardBps: args[0], ProtocolBps: args[1], MarketBps: args[2]})
		}))
	policy.AddCommand(policySetter("set-bonus <rate-bps> <cap>", "Set the bonus rate and cap", 2,
		func(ctx context.Context, e engine.Engine, args []int64) (domain.Policy, error) {
			return e.SetBonusPolicy(ctx, actor(), args[0], args[1])
		}))
	policy.AddCommand(policySetter("set-liveness <seconds>", "Set the assertion liveness window", 1,
		func(ctx context.Context, e engine.Engine, args []int64) (domain.Policy, error) {
			return e.SetLiveness(ctx, actor(), args[0])
		}))
	policy.AddCommand(&cobra.Command{
		Use:   "set-resolver <admin|assertion>",
		Short: "Select the outcome resolver",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.SetResolver(ctx, actor(), args[0])
				if err != nil {
					return err
				}
				return printPolicyVersion(p)
			})
		},
	})
	policy.AddCommand(&cobra.Command{
		Use:   "set-treasuries <protocol> [market]",
		Short: "Set the treasury accounts; an empty market burns its share",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			market := ""
			if len(args) == 2 {
				market = args[1]
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.SetTreasuries(ctx, actor(), args[0], market)
				if err != nil {
					return err
				}
				return printPolicyVersion(p)
			})
		},
	})
	return policy
}

func policyHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List policy versions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.PolicyHistory(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("Version", "Min stake", "Slash %", "Split (r/p/m)", "Bonus bps", "Cap", "Resolver", "By", "At")
				for _, p := range items {
					split := fmt.Sprintf("%d/%d/%d", p.Split.RewardBps, p.Split.ProtocolBps, p.Split.MarketBps)
					tw.AppendRow(table.Row{p.Version, p.MinStake, p.SlashPercent, split, p.BonusRateBps, p.BonusCap, p.Resolver, p.CreatedBy, p.CreatedAt.Format(time.RFC3339)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum versions")
	return cmd
}

// policySetter builds a command taking n integer arguments.
func policySetter(use, short string, n int, apply func(context.Context, engine.Engine, []int64) (domain.Policy, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(n),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := make([]int64, 0, n)
			for _, a := range args {
				v, err := strconv.ParseInt(a, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid integer %q", a)
				}
				values = append(values, v)
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := apply(ctx, rt.Engine, values)
				if err != nil {
					return err
				}
				return printPolicyVersion(p)
			})
		},
	}
}

func printPolicyVersion(p domain.Policy) error {
	if viper.GetBool("json") {
		return printJSON(p)
	}
	fmt.Printf("Policy version %d in force\n", p.Version)
	return nil
}

func outcomeCmd() *cobra.Command {
	outcome := &cobra.Command{Use: "outcome", Short: "Admin resolver outcomes"}
	outcome.AddCommand(&cobra.Command{
		Use:   "set <claim-hash> <true|false>",
		Short: "Record the outcome of a claim hash",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := parseBool(args[1])
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				o, err := rt.Engine.SetOutcome(ctx, actor(), args[0], value)
				if err != nil {
					return err
				}
				fmt.Printf("Outcome of %s set to %t\n", o.ClaimHash, o.Outcome)
				return nil
			})
		},
	})
	outcome.AddCommand(outcomeImportCmd())
	return outcome
}

func outcomeImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Record a YAML or JSON list of {claim_hash, outcome} atomically",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var batch []resolver.OutcomeEntry
			var raw []struct {
				ClaimHash string `yaml:"claim_hash"`
				Outcome   bool   `yaml:"outcome"`
			}
			if err := yaml.Unmarshal(data, &raw); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			for _, r := range raw {
				batch = append(batch, resolver.OutcomeEntry{ClaimHash: r.ClaimHash, Outcome: r.Outcome})
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				out, err := rt.Engine.SetOutcomes(ctx, actor(), batch)
				if err != nil {
					return err
				}
				fmt.Printf("Recorded %d outcomes\n", len(out))
				return nil
			})
		},
	}
}

func assertionCmd() *cobra.Command {
	assertion := &cobra.Command{Use: "assertion", Short: "Oracle-backed resolution"}
	var text, predict string
	request := &cobra.Command{
		Use:   "request <claim-hash>",
		Short: "Post the bond and assert the claim's outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			predicted, err := parseBool(predict)
			if err != nil {
				return fmt.Errorf("--predict: %w", err)
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				a, err := rt.Engine.RequestResolution(ctx, engine.AssertionRequest{
					ClaimHash:        args[0],
					ClaimText:        text,
					PredictedOutcome: predicted,
					Requester:        actor(),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				fmt.Printf("Assertion %s open until %s (bond %d)\n", a.AssertionID, a.ExpiresAt.Format(time.RFC3339), a.Bond)
				return nil
			})
		},
	}
	request.Flags().StringVar(&text, "text", "", "claim statement shown to disputers")
	request.Flags().StringVar(&predict, "predict", "true", "asserted outcome (true/false)")
	assertion.AddCommand(request)

	assertion.AddCommand(&cobra.Command{
		Use:   "settle <claim-hash>",
		Short: "Finalise an assertion after its liveness window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				a, err := rt.Engine.SettleAssertion(ctx, args[0], actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	})
	assertion.AddCommand(&cobra.Command{
		Use:   "show <claim-hash>",
		Short: "Show the assertion for a claim hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				a, err := rt.Engine.GetAssertion(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	})
	assertion.AddCommand(&cobra.Command{
		Use:   "pending",
		Short: "List pending assertions, soonest expiry first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.PendingAssertions(ctx, 100)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("Claim hash", "Assertion", "Requester", "Predicted", "Bond", "Expires")
				for _, a := range items {
					tw.AppendRow(table.Row{shortID(a.ClaimHash), shortID(a.AssertionID), a.Requester, a.PredictedOutcome, a.Bond, a.ExpiresAt.Format(time.RFC3339)})
				}
				tw.Render()
				return nil
			})
		},
	})
	return assertion
}

func oracleCmd() *cobra.Command {
	oracleRoot := &cobra.Command{Use: "oracle", Short: "Local oracle simulator: disputes and verdicts"}
	oracleRoot.AddCommand(&cobra.Command{
		Use:   "show <assertion-id>",
		Short: "Oracle-side view of an assertion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				a, err := rt.Sim.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	})
	oracleRoot.AddCommand(&cobra.Command{
		Use:   "dispute <assertion-id>",
		Short: "Dispute an assertion inside its liveness window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Sim.Dispute(ctx, args[0], actor()); err != nil {
					return err
				}
				fmt.Printf("Disputed %s; awaiting verdict\n", args[0])
				return nil
			})
		},
	})
	oracleRoot.AddCommand(&cobra.Command{
		Use:   "verdict <assertion-id> <truthful:true|false>",
		Short: "Record the verdict on a disputed assertion (operator)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			truthful, err := parseBool(args[1])
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Engine.RequireOperator(ctx, actor(), auth.PermOutcomeWrite); err != nil {
					return err
				}
				if err := rt.Sim.RecordVerdict(ctx, args[0], truthful); err != nil {
					return err
				}
				fmt.Printf("Verdict on %s recorded: truthful=%t\n", args[0], truthful)
				return nil
			})
		},
	})
	return oracleRoot
}

func operatorCmd() *cobra.Command {
	op := &cobra.Command{Use: "operator", Short: "Manage operators"}
	op.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List operators",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				ops, err := rt.Engine.ListOperators(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ops)
				}
				tw := newTable("Actor", "Granted by", "Granted at")
				for _, o := range ops {
					tw.AppendRow(table.Row{o.ActorID, o.GrantedBy, o.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	op.AddCommand(&cobra.Command{
		Use:   "grant <actor-id>",
		Short: "Grant operator rights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Engine.GrantOperator(ctx, actor(), args[0]); err != nil {
					return err
				}
				fmt.Printf("Granted operator to %s\n", args[0])
				return nil
			})
		},
	})
	op.AddCommand(&cobra.Command{
		Use:   "revoke <actor-id>",
		Short: "Revoke operator rights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Engine.RevokeOperator(ctx, actor(), args[0]); err != nil {
					return err
				}
				fmt.Printf("Revoked operator from %s\n", args[0])
				return nil
			})
		},
	})
	op.AddCommand(&cobra.Command{
		Use:   "whoami",
		Short: "Show whether the actor is an operator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				ok, err := rt.Engine.IsOperator(ctx, actor())
				if err != nil {
					return err
				}
				fmt.Printf("%s operator=%t\n", actor(), ok)
				return nil
			})
		},
	})
	return op
}

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var owner, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the secret is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				key, secret, err := rt.Engine.CreateAPIKey(ctx, actor(), owner, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"key": key, "secret": secret})
				}
				fmt.Printf("Created key %s for %s\nSecret (store it now): %s\n", key.ID, key.ActorID, secret)
				return nil
			})
		},
	}
	create.Flags().StringVar(&owner, "for", "", "owning actor (operators only; default self)")
	create.Flags().StringVar(&name, "name", "", "key label")
	keys.AddCommand(create)
	keys.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the actor's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.ListAPIKeys(ctx, actor())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Actor", "Name", "Created")
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	keys.AddCommand(&cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Engine.RevokeAPIKey(ctx, actor(), args[0]); err != nil {
					return err
				}
				fmt.Printf("Revoked %s\n", args[0])
				return nil
			})
		},
	})
	return keys
}

func logCmd() *cobra.Command {
	logRoot := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	logRoot.AddCommand(logTailCmd())
	return logRoot
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				events, err := rt.Engine.ListEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable("ID", "TS", "Type", "Entity", "Actor")
				for _, ev := range events {
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.EntityKind + ":" + shortID(ev.EntityID), ev.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}
