package cmd

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/G-Research/eventhouse/internal/common/logcontext"
	"github.com/G-Research/eventhouse/internal/common/util"
	"github.com/G-Research/eventhouse/internal/ingester/queue"
	"github.com/G-Research/eventhouse/internal/ingester/sink"
)

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Checks that ClickHouse and NATS are reachable with the current configuration",
		RunE:  check,
	}
	return cmd
}

func check(cmd *cobra.Command, _ []string) error {
	config, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	ctx := logcontext.Background()

	clickhouse, err := sink.NewClickHouseClient(config.ClickHouse)
	if err != nil {
		return err
	}
	if err := clickhouse.Ping(ctx); err != nil {
		return errors.WithMessagef(err, "ClickHouse at %s is not reachable", config.ClickHouse.Url)
	}
	log.Infof("ClickHouse at %s is reachable", config.ClickHouse.Url)

	config.Nats.ConnectAttempts = 1
	client, err := queue.Connect(ctx, config.Nats)
	if err != nil {
		return err
	}
	defer util.CloseResource("NATS connection", client)
	if err := client.Check(); err != nil {
		return err
	}
	log.Infof("NATS at %v is reachable", config.Nats.Servers)
	return nil
}
