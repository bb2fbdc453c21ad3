package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lightcast-mcp/lightcast-mcp/internal/appctx"
	"github.com/lightcast-mcp/lightcast-mcp/internal/auth"
	"github.com/lightcast-mcp/lightcast-mcp/internal/commands"
	"github.com/lightcast-mcp/lightcast-mcp/internal/config"
	"github.com/lightcast-mcp/lightcast-mcp/internal/output"
	"github.com/lightcast-mcp/lightcast-mcp/internal/version"
)

// NewRootCmd creates the root cobra command.
func NewRootCmd() *cobra.Command {
	var flags appctx.GlobalFlags

	cmd := &cobra.Command{
		Use:   version.Name,
		Short: "MCP server for the Lightcast API",
		Long: `lightcast-mcp exposes the Lightcast skills, titles and classification APIs
as Model Context Protocol tools. Run "lightcast-mcp serve" from your MCP client
configuration; the other commands help set up and debug credentials.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// version and help work without configuration
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}

			cfg, err := config.Load(config.FlagOverrides{ConfigFile: flags.ConfigFile})
			if err != nil {
				return output.ErrUsage(err.Error())
			}

			log := NewLogger(os.Stderr, cfg.LogLevel, flags.Verbose)

			secrets := auth.NewSecretStore(config.GlobalConfigDir(), log)
			cfg.ResolveSecret(secrets.Get)

			app := appctx.NewApp(cfg, flags, log)
			app.Secrets = secrets

			cmd.SetContext(appctx.WithApp(cmd.Context(), app))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flags.ConfigFile, "config", "", "Config file (default: ~/.config/lightcast-mcp/config.yaml)")
	cmd.PersistentFlags().BoolVarP(&flags.JSON, "json", "j", false, "Output as JSON")
	cmd.PersistentFlags().BoolVar(&flags.Quiet, "quiet", false, "Output data only, no envelope")
	cmd.PersistentFlags().CountVarP(&flags.Verbose, "verbose", "v", "Verbose logging (-v debug, -vv trace)")
	cmd.PersistentFlags().BoolVar(&flags.NoState, "no-state", false, "Keep rate-limit state in memory only")

	cmd.AddCommand(commands.All()...)

	return cmd
}

// NewLogger builds the stderr logger. stdout belongs to the MCP stdio
// transport and command output. -v and -vv raise the configured level.
func NewLogger(w io.Writer, level string, verbose int) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	switch {
	case verbose >= 2:
		lvl = zerolog.TraceLevel
	case verbose == 1 && lvl > zerolog.DebugLevel:
		lvl = zerolog.DebugLevel
	}

	if f, ok := w.(*os.File); ok && term.IsTerminal(f.Fd()) {
		w = zerolog.ConsoleWriter{Out: f, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Execute runs the root command and exits with the mapped exit code.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

// run executes args and returns the process exit code.
func run(ctx context.Context, args []string, stdout io.Writer) int {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)

	executedCmd, err := cmd.ExecuteContextC(ctx)
	if err == nil {
		return output.ExitOK
	}

	err = transformCobraError(err)
	exit := output.AsError(err).ExitCode()

	if executedCmd != nil {
		if app := appctx.FromContext(executedCmd.Context()); app != nil {
			_ = app.Err(err)
			return exit
		}
	}

	// No app yet, e.g. the config failed to load.
	pf := cmd.PersistentFlags()
	format := output.FormatAuto
	if quiet, _ := pf.GetBool("quiet"); quiet {
		format = output.FormatQuiet
	} else if jsonFlag, _ := pf.GetBool("json"); jsonFlag {
		format = output.FormatJSON
	}
	_ = output.New(output.Options{Format: format, Writer: stdout}).Err(err)
	return exit
}

var (
	shorthandRe = regexp.MustCompile(`unknown shorthand flag: '.' in (-\w)`)
	requiredRe  = regexp.MustCompile(`required flag\(s\) "([\w-]+)" not set`)
)

// transformCobraError turns cobra's argument errors into usage errors.
func transformCobraError(err error) error {
	msg := err.Error()

	switch {
	case strings.HasPrefix(msg, "flag needs an argument: "):
		return output.ErrUsage(strings.TrimPrefix(msg, "flag needs an argument: ") + " requires a value")
	case strings.HasPrefix(msg, "unknown flag: "):
		return output.ErrUsage("Unknown option: " + strings.TrimPrefix(msg, "unknown flag: "))
	case strings.HasPrefix(msg, "unknown shorthand flag: "):
		if m := shorthandRe.FindStringSubmatch(msg); len(m) > 1 {
			return output.ErrUsage("Unknown option: " + m[1])
		}
		return output.ErrUsage(msg)
	case strings.HasPrefix(msg, "unknown command "):
		return output.ErrUsageHint(msg, "Run: lightcast-mcp --help")
	case strings.HasPrefix(msg, "required flag(s) "):
		if m := requiredRe.FindStringSubmatch(msg); len(m) > 1 {
			return output.ErrUsage("--" + m[1] + " is required")
		}
		return output.ErrUsage(msg)
	case strings.Contains(msg, "invalid argument"),
		strings.Contains(msg, "arg(s), received"),
		strings.Contains(msg, "requires at least"):
		return output.ErrUsage(msg)
	}
	return err
}
