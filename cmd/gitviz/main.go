package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gitviz/gitviz/internal/config"
	apperrors "github.com/gitviz/gitviz/internal/errors"
	"github.com/gitviz/gitviz/internal/logging"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile string
	verbose bool
	logJSON bool
	logger  *logrus.Logger
	cfg     *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(apperrors.ExitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "gitviz",
	Short: "Gitviz - Animated videos from multi-repository commit history",
	Long: `Gitviz scans the commit history of one or more git repositories,
unifies committer identities, merges everything into a single timeline
and streams it through gource and ffmpeg to produce a video.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.INFO
		if env := os.Getenv("GITVIZ_LOG_LEVEL"); env != "" {
			level = logging.ParseLevel(env)
		}
		if verbose {
			level = logging.DEBUG
		}

		// Initialize logger
		logger = logrus.New()
		logger.SetLevel(logrusLevel(level))
		if logJSON {
			logger.SetFormatter(&logrus.JSONFormatter{})
		}

		if err := logging.Initialize(logging.Config{Level: level, JSONFormat: logJSON}); err != nil {
			logger.WithError(err).Warn("Structured log file unavailable, logging to stderr only")
		}

		// Load configuration
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			logger.WithError(err).Warn("Failed to load config, using defaults")
			cfg = config.Default()
		}
	},
}

// logrusLevel keeps the CLI logger on the same threshold as the
// structured one.
func logrusLevel(level logging.LogLevel) logrus.Level {
	switch level {
	case logging.DEBUG:
		return logrus.DebugLevel
	case logging.WARN:
		return logrus.WarnLevel
	case logging.ERROR:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.gitviz/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log in JSON format")

	// Set custom version template
	rootCmd.SetVersionTemplate(`Gitviz {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	// Add subcommands
	rootCmd.AddCommand(visualizeCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(configCmd)
}
