package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/imwg-risk-server/internal/api"
	"github.com/imwg-risk-server/internal/app"
	"github.com/imwg-risk-server/internal/config"
	"github.com/imwg-risk-server/internal/database"
	"github.com/imwg-risk-server/internal/domain"
	"github.com/imwg-risk-server/internal/service"
	"github.com/imwg-risk-server/internal/setup"
)

// rootOptions are shared by every subcommand.
type rootOptions struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:          "imwgctl",
		Short:        "Operate the IMWG multiple myeloma risk server",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to the server config file (default: search ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level for diagnostic output")

	rootCmd.AddCommand(
		newMigrateCmd(opts),
		newClassifyCmd(),
		newAuditCmd(opts),
		newSetupCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func (o *rootOptions) logger() (*logrus.Logger, error) {
	return config.NewLogger(domain.LoggingConfig{Level: o.logLevel, Format: "text", Output: "stderr"})
}

func (o *rootOptions) configManager() (*config.Manager, error) {
	if o.configFile != "" {
		return config.NewManagerFromFile(o.configFile)
	}
	return config.NewManager()
}

// --- migrate ---

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}

	run := func(action func(cmd *cobra.Command, runner *database.MigrationRunner) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			manager, err := opts.configManager()
			if err != nil {
				return err
			}
			logger, err := opts.logger()
			if err != nil {
				return err
			}
			runner, err := database.NewMigrationRunner(manager.GetDatabaseURL(), logger)
			if err != nil {
				return err
			}
			defer runner.Close()
			return action(cmd, runner)
		}
	}

	migrateCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, runner *database.MigrationRunner) error {
				if err := runner.Up(cmd.Context()); err != nil {
					return err
				}
				return printVersion(cmd.OutOrStdout(), runner)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, runner *database.MigrationRunner) error {
				if err := runner.Down(cmd.Context()); err != nil {
					return err
				}
				return printVersion(cmd.OutOrStdout(), runner)
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, runner *database.MigrationRunner) error {
				return printVersion(cmd.OutOrStdout(), runner)
			}),
		},
	)
	return migrateCmd
}

func printVersion(w io.Writer, runner *database.MigrationRunner) error {
	version, dirty, err := runner.Version()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "schema version %d (dirty: %t)\n", version, dirty)
	return err
}

// --- classify ---

type classifyOptions struct {
	del17p        string
	translocation string
	del1p32       string
	b2m           float64
	creatinine    float64
	output        string
}

func newClassifyCmd() *cobra.Command {
	opts := &classifyOptions{}

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a genetic profile without storing it",
		Example: `  imwgctl classify --del17p positive --translocation negative --del1p32 negative
  imwgctl classify --del17p negative --translocation negative --del1p32 negative --b2m 6.1 --creatinine 0.9 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.del17p, "del17p", "", "del(17p)/TP53 status: positive or negative")
	flags.StringVar(&opts.translocation, "translocation", "", "high-risk translocation with +1q or del(1p32): positive or negative")
	flags.StringVar(&opts.del1p32, "del1p32", "", "del(1p32) pattern status: positive or negative")
	flags.Float64Var(&opts.b2m, "b2m", 0, "serum β2-microglobulin in mg/L")
	flags.Float64Var(&opts.creatinine, "creatinine", 0, "serum creatinine in mg/dL")
	flags.StringVarP(&opts.output, "output", "o", "text", "output format: text or json")

	return cmd
}

func runClassify(cmd *cobra.Command, opts *classifyOptions) error {
	if opts.output != "text" && opts.output != "json" {
		return fmt.Errorf("unsupported output format %q", opts.output)
	}

	req := &domain.CreateAssessmentRequest{
		Del17pTP53:         opts.del17p,
		TranslocationCombo: opts.translocation,
		Del1p32:            opts.del1p32,
	}
	if cmd.Flags().Changed("b2m") {
		req.B2MValue = &opts.b2m
	}
	if cmd.Flags().Changed("creatinine") {
		req.CreatinineValue = &opts.creatinine
	}

	if errs := service.ValidateAssessment(req); len(errs) > 0 {
		return domain.NewValidationError(domain.MsgValidationFailed, errs)
	}

	report := service.EvaluateProfile(domain.GeneticProfile{
		Del17pTP53:         domain.MarkerStatus(req.Del17pTP53),
		TranslocationCombo: domain.MarkerStatus(req.TranslocationCombo),
		Del1p32:            domain.MarkerStatus(req.Del1p32),
		B2MValue:           req.B2MValue,
		CreatinineValue:    req.CreatinineValue,
	})

	out := cmd.OutOrStdout()
	if opts.output == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}
	return writeReport(out, report)
}

func writeReport(w io.Writer, report *service.RiskReport) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Risk result: %s\n", report.RiskResult)
	fmt.Fprintf(&b, "High-risk criteria met: %d\n", report.TotalRiskFactors)
	for _, f := range report.RiskFactors {
		fmt.Fprintf(&b, "  - %s: %s\n", f.Criterion, f.Description)
	}
	fmt.Fprintf(&b, "\n%s\n\nRecommendations:\n", report.ClinicalInterpretation)
	for _, r := range report.Recommendations {
		fmt.Fprintf(&b, "  - %s\n", r)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// --- audit ---

func newAuditCmd(opts *rootOptions) *cobra.Command {
	var dataDir string

	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the assessment audit trail",
	}

	exportCmd := &cobra.Command{
		Use:   "export <assessment-id>",
		Short: "Export the audit trail of an assessment from the lite database as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := opts.logger()
			if err != nil {
				return err
			}

			cfg := config.LoadLiteConfig()
			if dataDir != "" {
				cfg.DataDir = dataDir
			}

			stack, err := app.NewLiteStack(cfg, app.WithLogger(logger))
			if err != nil {
				return err
			}
			defer stack.Close()

			return stack.Audit.ExportJSON(cmd.Context(), args[0], cmd.OutOrStdout())
		},
	}
	exportCmd.Flags().StringVar(&dataDir, "data-dir", "", "lite data directory (default: $IMWG_DATA_DIR or ~/.imwg-risk)")

	auditCmd.AddCommand(exportCmd)
	return auditCmd
}

// --- setup ---

func newSetupCmd() *cobra.Command {
	var opts setup.Options

	setupCmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the MCP server with a desktop MCP client",
	}
	setupCmd.PersistentFlags().StringVar(&opts.ConfigPath, "client-config", "", "client config file (default: platform Claude Desktop location)")

	registerCmd := &cobra.Command{
		Use:   "claude-desktop",
		Short: "Add or update the server entry in the client config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, path, err := setup.Register(opts)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Registered %s -> %s in %s\n", setup.ServerName, entry.Command, path)
			return err
		},
	}
	registerCmd.Flags().StringVar(&opts.BinaryPath, "binary", "", "path to the mcp-server binary (default: search PATH and common locations)")
	registerCmd.Flags().StringVar(&opts.DataDir, "data-dir", "", "data directory passed to the server")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current registration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := setup.GetStatus(opts.ConfigPath)
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(status)
		},
	}

	setupCmd.AddCommand(registerCmd, statusCmd)
	return setupCmd
}

// --- version ---

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the API version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "imwgctl %s\n", api.Version)
			return err
		},
	}
}
