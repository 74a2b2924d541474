package main

import (
	"github.com/spf13/cobra"

	"kra-assist/internal/common/config"
	"kra-assist/internal/common/logger"
)

// cli carries what every subcommand needs. Config and logger are loaded once
// in PersistentPreRunE.
type cli struct {
	configPath string
	logLevel   string
	cfg        *config.Config
	log        logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "kractl",
		Short:         "Operate the KRA tax assistant",
		Long:          `Ingest KRA and M-Pesa records, train the fraud model, query payment status and seed the knowledge base.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init()
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default: configs/config.yaml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level")

	root.AddCommand(c.ingestCmd(), c.fraudCmd(), c.paymentCmd(), c.kbCmd())
	return root
}

func (c *cli) init() error {
	var err error
	if c.configPath != "" {
		c.cfg, err = config.LoadFromFile(c.configPath)
	} else {
		c.cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	c.log = logger.NewStructured(c.logLevel, "console")
	return nil
}
