package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"veribond/internal/app"
	"veribond/internal/config"
	"veribond/internal/db"
	"veribond/internal/migrate"
)

var rootCmd = &cobra.Command{
	Use:   "vb",
	Short: "VeriBond claim staking ledger",
	Long: `VeriBond lets agents stake on claims about the future and settles them
once an outcome is known.
- Claims: an agent's wallet escrows a stake on a predicted outcome that resolves at a fixed time.
- Resolution: after that time anyone may resolve; a correct stake comes back with a capped bonus
  from the agent's reserve, a wrong stake is partly slashed and split between the agent's reserve,
  the protocol treasury and the market.
- Resolvers: "admin" takes outcomes set by operators; "assertion" asks an optimistic oracle,
  where an undisputed assertion stands and a disputed one follows the verdict.
- Policy: every change makes a new numbered version; settlements record the version they used.
- Event log: every mutation is appended to it, view with 'vb log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("VERIBOND")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-operator", "actor identifier")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().Bool("log-json", false, "JSON log output")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log-json", rootCmd.PersistentFlags().Lookup("log-json"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(claimCmd())
	rootCmd.AddCommand(keeperCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(agentCmd())
	rootCmd.AddCommand(accountCmd())
	rootCmd.AddCommand(policyCmd())
	rootCmd.AddCommand(outcomeCmd())
	rootCmd.AddCommand(assertionCmd())
	rootCmd.AddCommand(oracleCmd())
	rootCmd.AddCommand(operatorCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default veribond.yml with the actor as first operator",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(viper.GetString("actor-id"))), 0o644); err != nil {
				return err
			}
			fmt.Println("Wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect workspace config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOrDefault(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(c)
			}
			b, err := c.YAML()
			if err != nil {
				return err
			}
			fmt.Print(string(b))
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate veribond.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print applied schema versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				ledger, err := migrate.Version(ctx, rt.DB)
				if err != nil {
					return err
				}
				oracleV, err := migrate.Version(ctx, rt.OracleDB)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]int{migrate.SetLedger: ledger, migrate.SetOracle: oracleV})
			})
		},
	})
	return cfg
}

// --- helpers ---

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOrDefault(workspace)
	if err != nil {
		return err
	}
	if lvl := viper.GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if viper.GetBool("log-json") {
		cfg.Logging.JSON = true
	}
	rt, err := app.Open(ctx, app.Options{
		Workspace: workspace,
		ActorID:   viper.GetString("actor-id"),
		Config:    cfg,
	})
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func actor() string {
	return viper.GetString("actor-id")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y":
		return true, nil
	case "no", "n":
		return false, nil
	}
	return strconv.ParseBool(s)
}

func parseAmount(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
