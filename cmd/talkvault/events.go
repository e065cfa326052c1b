package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/talkvault/talkvault/internal/message_broaker"
)

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow lifecycle events published to RabbitMQ",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Print published job events until interrupted",
		Long:  "Consumes TALKVAULT_RABBITMQ_QUEUE, which is bound to the events exchange, and prints each message body.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.RabbitMQConfig.URL == "" || cfg.RabbitMQConfig.Queue == "" {
				return errors.New("events watch needs TALKVAULT_RABBITMQ_URL and TALKVAULT_RABBITMQ_QUEUE")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			broker, err := message_broaker.NewRabbitMQ(cfg.RabbitMQConfig)
			if err != nil {
				return err
			}
			defer broker.Close()

			messages, err := broker.Consume(ctx, cfg.RabbitMQConfig.Queue)
			if err != nil {
				return err
			}
			for body := range messages {
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
			}
			return nil
		},
	})
	return cmd
}
