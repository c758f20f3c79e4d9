package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/geocms/lab-reservation/internal/queue"
)

func newConsumeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Drain reservation notifications into the notification log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			n := a.cfg.Notify
			sink := &lumberjack.Logger{
				Filename:   n.LogPath,
				MaxSize:    n.MaxSizeMB,
				MaxBackups: n.MaxBackups,
				MaxAge:     n.MaxAgeDays,
				Compress:   true,
			}
			defer sink.Close()

			c := &queue.Consumer{
				URL:      a.cfg.Rabbit.URL,
				Exchange: a.cfg.Rabbit.Exchange,
				Queue:    a.cfg.Rabbit.Queue,
				Prefetch: a.cfg.Rabbit.Prefetch,
				Sink:     sink,
				Log:      a.log,
			}
			err := c.Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
