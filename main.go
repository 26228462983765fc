// Command meter-reader reads a gas meter's dials from a camera and reports
// usage and flow.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"meter-reader/internal/version"
)

var (
	logLevel   = "info"
	configPath = "meter.json"
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.StampMilli,
		})
	}
	return nil
}

// NewCommand builds the root command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "meter-reader",
		Short:         "Read a gas meter's dials from a camera",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogger()
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVarP(&configPath, "config", "c", configPath, "configuration file; missing means defaults")

	cmd.AddCommand(
		NewRunCommand(),
		NewCalibrateCommand(),
		NewReadCommand(),
		NewVersionCommand(),
	)
	return cmd
}

// NewVersionCommand prints build information.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("%s (commit %s, built %s)\n", version.Version, version.GitCommit, version.BuildTime)
		},
	}
}

func main() {
	if err := NewCommand().Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
