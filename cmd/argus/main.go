package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"argus/cmd/argus/chat"
	"argus/internal/backend"
	"argus/internal/config"
	"argus/internal/logging"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string
	baseURL    string
	theme      string

	appConfig *config.Config

	// Logger for subcommands; the TUI logs to file.
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "argus",
	Short: "ARGUS - terminal client for the ARGUS analytics agent",
	Long: `argus is a terminal client for the ARGUS analytics agent.

Replies stream in character by character. Files can be attached to a
conversation, and a dashboard shows live model metrics.

Run without arguments to start the interactive chat interface.`,
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runInteractiveChat,
}

func init() {
	rootCmd.PersistentPreRunE = rootPersistentPreRunE

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath(), "Config file")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Backend base URL (overrides config)")
	rootCmd.Flags().StringVar(&theme, "theme", "", "Color theme: auto, light or dark")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(devserverCmd)
	rootCmd.AddCommand(versionCmd)
}

func rootPersistentPreRunE(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if baseURL != "" {
		cfg.Server.BaseURL = baseURL
	}
	if theme != "" {
		cfg.Chat.Theme = theme
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	appConfig = cfg

	// Interactive mode logs to a file so the UI stays clean.
	if cmd == rootCmd {
		return nil
	}

	zc := zap.NewProductionConfig()
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err = zc.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logging.Use(logger)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the client version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "argus", backend.Version)
	},
}

func newClient(cfg *config.Config) (*backend.Client, error) {
	return backend.New(cfg.Server.BaseURL, backend.WithTimeout(cfg.GetServerTimeout()))
}

func runInteractiveChat(cmd *cobra.Command, args []string) error {
	if verbose {
		appConfig.Logging.DebugMode = true
		appConfig.Logging.Level = "debug"
	}
	if err := logging.Initialize(appConfig.Logging.Options()); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.CloseAll()
	logging.Boot("argus %s starting against %s", backend.Version, appConfig.Server.BaseURL)

	client, err := newClient(appConfig)
	if err != nil {
		return err
	}

	p := tea.NewProgram(
		chat.InitChat(chat.Config{Client: client, App: appConfig, Theme: theme}),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go func() {
		err := config.Watch(ctx, configPath, func(c *config.Config) {
			// Flags still win over the file.
			if baseURL != "" {
				c.Server.BaseURL = baseURL
			}
			if theme != "" {
				c.Chat.Theme = theme
			}
			p.Send(chat.ConfigReloadedMsg{Config: c})
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.ConfigWarn("config watcher stopped: %v", err)
		}
	}()

	_, err = p.Run()
	return err
}
