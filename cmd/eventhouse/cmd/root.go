package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/G-Research/eventhouse/internal/common"
	"github.com/G-Research/eventhouse/internal/common/app"
	commonconfig "github.com/G-Research/eventhouse/internal/common/config"
	"github.com/G-Research/eventhouse/internal/common/logging"
	"github.com/G-Research/eventhouse/internal/ingester"
	"github.com/G-Research/eventhouse/internal/ingester/configuration"
)

const (
	CustomConfigLocation string = "config"
	DefaultConfigPath    string = "./config/eventhouse"
)

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "eventhouse",
		SilenceUsage: true,
		Short:        "Loads events from NATS JetStream into ClickHouse",
		RunE:         runIngester,
	}

	cmd.PersistentFlags().StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")

	cmd.AddCommand(checkCmd())
	return cmd
}

func runIngester(cmd *cobra.Command, _ []string) error {
	config, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	if err := logging.ConfigureApplicationLogging(config.Logging); err != nil {
		return err
	}
	if err := ingester.Run(app.CreateContextWithShutdown(), config); err != nil {
		logging.WithStacktrace(log.NewEntry(log.StandardLogger()), err).Error("Eventhouse failed to start")
		return err
	}
	return nil
}

func loadConfig(flags *pflag.FlagSet) (configuration.EventhouseConfiguration, error) {
	var config configuration.EventhouseConfiguration
	userSpecifiedConfigs, err := flags.GetStringSlice(CustomConfigLocation)
	if err != nil {
		return config, err
	}

	if err := common.LoadConfig(&config, DefaultConfigPath, userSpecifiedConfigs); err != nil {
		return config, err
	}
	if err := config.Validate(); err != nil {
		commonconfig.LogValidationErrors(err)
		return config, err
	}
	return config, nil
}
