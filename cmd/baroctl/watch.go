package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"baro-go/bus"
	"baro-go/services/config"
	"baro-go/services/hal"
	"baro-go/types"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "run the sampling service and print every reading",
		Flags: append(configFlags(),
			&cli.IntFlag{Name: flagCount, Usage: "stop after this many readings (0 runs until interrupted)"},
		),
		Action: runWatch,
	}
}

func runWatch(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, err := newLogger(c, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	b := bus.NewBus(16)
	halConn := b.NewConnection("hal")
	uiConn := b.NewConnection("watch")
	defer uiConn.Disconnect()

	values := uiConn.Subscribe(hal.ValueTopic("+", "+"))
	states := uiConn.Subscribe(hal.StateTopic())

	svc := hal.New(halConn, hal.Options{Logger: log})
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()
	config.NewConfigService(cfg, log).Start(ctx, uiConn)

	n, limit := 0, c.Int(flagCount)
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-states.Channel():
			if st, ok := m.Payload.(types.HALState); ok {
				log.Info("hal state", zap.String("level", st.Level),
					zap.String("status", st.Status), zap.String("error", st.Error))
			}
		case m := <-values.Channel():
			v, ok := m.Payload.(types.Measurement)
			if !ok {
				continue
			}
			fmt.Fprintf(c.App.Writer, "%s %s %.2f %s\n", v.Device, m.Topic[2], v.Value, v.Unit)
			if n++; limit > 0 && n >= limit {
				return nil
			}
		}
	}
}
