package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"baro-go/bus"
	"baro-go/services/config"
	"baro-go/services/hal"
)

const flagListen = "listen"

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the sampling service and expose Prometheus metrics",
		Flags: append(configFlags(),
			&cli.StringFlag{Name: flagListen, Usage: "metrics listen address; overrides metrics_addr"},
		),
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if l := c.String(flagListen); l != "" {
		cfg.MetricsAddr = l
	}
	log, err := newLogger(c, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	b := bus.NewBus(16)
	svc := hal.New(b.NewConnection("hal"), hal.Options{Logger: log, Metrics: hal.NewMetrics(reg)})

	ln, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		return errors.Wrap(err, "metrics listen")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, ctx := errgroup.WithContext(c.Context)
	g.Go(func() error {
		svc.Run(ctx)
		return nil
	})
	g.Go(func() error {
		log.Info("metrics listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "metrics server")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	config.NewConfigService(cfg, log).Start(ctx, b.NewConnection("config"))

	return g.Wait()
}
