// Command webpilot drives a Chrome tab with a language model until an
// objective is reached.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/martinemde/webpilot/config"
)

var (
	// Global flags
	cfgFile  string
	verbose  bool
	provider string
	model    string
	headless bool
	maxTurns int

	settings *viper.Viper
	cfg      *config.Config
	logger   *zap.Logger
)

// flagKeys maps persistent flags onto configuration keys. Flags only win
// when set on the command line.
var flagKeys = map[string]string{
	"provider":  "llm.provider",
	"model":     "llm.model",
	"headless":  "browser.headless",
	"max-turns": "agent.max_turns",
}

var rootCmd = &cobra.Command{
	Use:   "webpilot",
	Short: "Let a language model browse the web for you",
	Long: `webpilot gives a language model a real browser tab, a bounded memory of
what it has done and a small text file to take notes in. Each turn the model
issues one command (VISIT, CLICK, TYPE, TINSERT, ASK, COMPLETE, ...) until the
objective is reached. The text file is printed when it finishes.

Run without arguments to start an interactive session.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v, err := config.New(cfgFile)
		if err != nil {
			return err
		}
		for flag, key := range flagKeys {
			if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
				return fmt.Errorf("bind flag %s: %w", flag, err)
			}
		}
		settings = v
		cfg, err = config.Load(v)
		if err != nil {
			return err
		}
		logger, err = newLogger(cfg.Log, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if used := v.ConfigFileUsed(); used != "" {
			logger.Debug("config loaded", zap.String("path", used))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive(cmd.Context())
	},
}

var runCmd = &cobra.Command{
	Use:   "run [objective]",
	Short: "Pursue a single objective and print the resulting text file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runObjective(cmd.Context(), joinArgs(args))
	},
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Read objectives from the terminal, one after another",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive(cmd.Context())
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := config.Effective(settings)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./webpilot.yaml or ~/.config/webpilot/webpilot.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "LLM provider (openai, anthropic, groq, ollama)")
	rootCmd.PersistentFlags().StringVarP(&model, "model", "m", "", "Model for the agent (default: provider default)")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", true, "Run Chrome without a window")
	rootCmd.PersistentFlags().IntVar(&maxTurns, "max-turns", 0, "Turn limit per objective (0 = unlimited)")

	rootCmd.AddCommand(runCmd, replCmd, configCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// The first signal cancels the run; a second one gets the default
	// behaviour and kills the process.
	go func() {
		<-ctx.Done()
		stop()
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the process logger. Logs go to stderr so stdout carries
// only the agent transcript and the final text file.
func newLogger(lc config.LogConfig, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Format == "console" {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
