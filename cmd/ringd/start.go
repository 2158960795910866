package main

import (
	"context"

	"github.com/spf13/cobra"

	"ringd/internal/logging"
	"ringd/internal/node"
	"ringd/internal/ringcfg"
)

var (
	flagConfigFile   string
	flagHost         string
	flagPort         uint16
	flagSeedHost     string
	flagSeedPort     uint16
	flagSuccessors   int
	flagFingerBits   int
	flagRetryBudget  int
	flagStoreBackend string
	flagFileRoot     string
	flagLogLevel     string
	flagLogFormat    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a ring node",
	Long: `Start a ring node, joining the ring rooted at --seed-host/--seed-port,
or starting a new singleton ring when neither is given.

Examples:
  # Start the first node of a new ring
  ringd start --host 127.0.0.1 --port 9000

  # Start a second node that joins through the first
  ringd start --host 127.0.0.1 --port 9001 --seed-host 127.0.0.1 --seed-port 9000`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
	registerNodeFlags(startCmd)
}

func registerNodeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagConfigFile, "config", "", "Path to a JSON config file, applied on top of defaults")
	cmd.Flags().StringVar(&flagHost, "host", "127.0.0.1", "Host to bind and advertise")
	cmd.Flags().Uint16Var(&flagPort, "port", 0, "Port to bind (0 picks an ephemeral port)")
	cmd.Flags().StringVar(&flagSeedHost, "seed-host", "", "Existing ring member to join through")
	cmd.Flags().Uint16Var(&flagSeedPort, "seed-port", 0, "Port of --seed-host")
	cmd.Flags().IntVar(&flagSuccessors, "successors", 0, "Successor list size R (0 keeps the default)")
	cmd.Flags().IntVar(&flagFingerBits, "finger-bits", 0, "Finger table width M (0 keeps the default)")
	cmd.Flags().IntVar(&flagRetryBudget, "retry-budget", -1, "Remote-call retry budget (-1 keeps the default)")
	cmd.Flags().StringVar(&flagStoreBackend, "store", "", "Store backend: memory or file (empty keeps the default)")
	cmd.Flags().StringVar(&flagFileRoot, "store-root", "", "Root directory for the file store backend")
	cmd.Flags().StringVar(&flagLogLevel, "log-level", "", "debug, info, warn, or error")
	cmd.Flags().StringVar(&flagLogFormat, "log-format", "", "text or json")
}

func loadConfigFromFlags(cmd *cobra.Command) (*ringcfg.Config, error) {
	cfg, err := ringcfg.LoadFile(flagConfigFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = flagHost
	}
	if flags.Changed("port") {
		cfg.Port = flagPort
	}
	if flags.Changed("seed-host") {
		cfg.SeedHost = flagSeedHost
	}
	if flags.Changed("seed-port") {
		cfg.SeedPort = flagSeedPort
	}
	if flagSuccessors > 0 {
		cfg.SuccessorListSize = flagSuccessors
	}
	if flagFingerBits > 0 {
		cfg.FingerBits = flagFingerBits
	}
	if flagRetryBudget >= 0 {
		cfg.RetryBudget = flagRetryBudget
	}
	if flagStoreBackend != "" {
		cfg.StoreBackend = ringcfg.StoreBackend(flagStoreBackend)
	}
	if flagFileRoot != "" {
		cfg.FileStoreRoot = flagFileRoot
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.LogFormat = flagLogFormat
	}
	return cfg, cfg.Validate()
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigFromFlags(cmd)
	if err != nil {
		return err
	}

	log := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	n, err := node.New(cfg, log)
	if err != nil {
		return err
	}

	return n.Run(context.Background())
}
