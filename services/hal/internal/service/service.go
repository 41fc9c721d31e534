// services/hal/internal/service/service.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"baro-go/bus"
	"baro-go/errcode"
	"baro-go/services/hal/config"
	"baro-go/services/hal/internal/consts"
	"baro-go/services/hal/internal/halcore"
	"baro-go/services/hal/internal/halerr"
	"baro-go/services/hal/internal/metrics"
	"baro-go/services/hal/internal/registry"
	"baro-go/services/hal/internal/util"
	"baro-go/services/hal/internal/worker"
	"baro-go/types"
)

type devEntry struct {
	adaptor halcore.Adaptor
	caps    map[string]struct{} // capability kinds served
	busID   string
}

// Options carries the service's collaborators. Zero values get defaults.
type Options struct {
	Buses   halcore.BusFactory
	Clock   clock.Clock
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

type Service struct {
	conn  *bus.Connection
	buses halcore.BusFactory
	clk   clock.Clock
	log   *zap.SugaredLogger
	zlog  *zap.Logger
	met   *metrics.Metrics

	workerCfg halcore.WorkerConfig
	workers   map[string]*worker.MeasureWorker // busID -> worker
	results   chan halcore.Result

	devices    map[string]devEntry
	devPeriod  map[string]time.Duration
	devNextDue map[string]time.Time

	timer *clock.Timer
}

var (
	topicConfigHAL = bus.Topic{consts.TokConfig, consts.TokHAL}
	topicCtrl      = bus.Topic{consts.TokHAL, consts.TokCapability, "+", "+", consts.TokControl, "+"}
)

func New(conn *bus.Connection, opts Options) *Service {
	if opts.Buses == nil {
		opts.Buses = halcore.TransportBuses{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	zl := opts.Logger.Named("hal")
	return &Service{
		conn:       conn,
		buses:      opts.Buses,
		clk:        opts.Clock,
		log:        zl.Sugar(),
		zlog:       zl,
		met:        opts.Metrics,
		workers:    map[string]*worker.MeasureWorker{},
		results:    make(chan halcore.Result, 64),
		devices:    map[string]devEntry{},
		devPeriod:  map[string]time.Duration{},
		devNextDue: map[string]time.Time{},
	}
}

// Run serves until ctx is cancelled, then closes every device.
func (s *Service) Run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfigHAL)
	ctrlSub := s.conn.Subscribe(topicCtrl)
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(ctrlSub)

	s.publishState("idle", "awaiting_config", nil)

	s.timer = s.clk.Timer(time.Hour)
	if !s.timer.Stop() {
		util.DrainTimer(s.timer)
	}

	for {
		// arm timer
		if next := s.earliestDevDue(); next.IsZero() {
			util.ResetTimer(s.timer, time.Hour)
		} else {
			util.ResetTimer(s.timer, next.Sub(s.clk.Now()))
		}

		select {
		case <-ctx.Done():
			s.shutdown()
			return

		case msg := <-cfgSub.Channel():
			cfg, ok := msg.Payload.(config.HALConfig)
			if !ok {
				s.publishState("error", "config_wrong_type", nil)
				continue
			}
			if err := s.applyConfig(ctx, cfg); err != nil {
				s.publishState("ready", "configured_with_errors", err)
				continue
			}
			s.publishState("ready", "configured", nil)

		case msg := <-ctrlSub.Channel():
			s.handleControl(msg)

		case <-s.timer.C:
			now := s.clk.Now()
			for devID, due := range s.devNextDue {
				if !now.Before(due) {
					s.submitMeasure(devID, false)
					s.bumpDevNext(devID, now)
				}
			}

		case r := <-s.results:
			s.handleResult(r)
		}
	}
}

func (s *Service) handleControl(msg *bus.Message) {
	if len(msg.Topic) < 6 {
		return
	}
	kind, _ := msg.Topic[2].(string)
	devID, _ := msg.Topic[3].(string)
	if kind == "" || devID == "" {
		s.replyErr(msg, halerr.ErrInvalidCapAddr)
		return
	}
	ent, ok := s.devices[devID]
	if !ok {
		s.replyErr(msg, errors.Wrapf(halerr.ErrUnknownCap, "%s/%s", kind, devID))
		return
	}
	if _, ok := ent.caps[kind]; !ok {
		s.replyErr(msg, errors.Wrapf(halerr.ErrUnknownCap, "%s/%s", kind, devID))
		return
	}
	method, _ := msg.Topic[5].(string)

	switch method {
	case consts.CtrlReadNow:
		if s.submitMeasure(devID, true) {
			s.bumpDevNext(devID, s.clk.Now())
			s.conn.Reply(msg, types.ReadNowAck{OK: true}, false)
		} else {
			s.replyErr(msg, errors.Wrapf(halerr.ErrBusy, "read_now %s: bus %s queue full", devID, ent.busID))
		}
	case consts.CtrlSetRate:
		if p, ok := msg.Payload.(types.SetRate); ok && p.Period > 0 {
			s.devPeriod[devID] = util.ClampDuration(p.Period, consts.MinPeriod, consts.MaxPeriod)
			s.bumpDevNext(devID, s.clk.Now())
			s.conn.Reply(msg, types.SetRateAck{OK: true, Period: s.devPeriod[devID]}, false)
		} else {
			s.replyErr(msg, halerr.ErrInvalidPeriod)
		}
	default:
		s.replyErr(msg, errors.Wrapf(halerr.ErrUnsupported, "verb %q", method))
	}
}

// applyConfig builds new devices and retires ones no longer listed. Build
// failures do not stop the others; they are returned together.
func (s *Service) applyConfig(ctx context.Context, cfg config.HALConfig) error {
	s.workerCfg = halcore.WorkerConfig{
		TriggerTimeout: cfg.Worker.TriggerTimeout,
		CollectTimeout: cfg.Worker.CollectTimeout,
		RetryBackoff:   cfg.Worker.RetryBackoff,
		MaxRetries:     cfg.Worker.MaxRetries,
		InputQueueSize: cfg.Worker.QueueSize,
	}
	seen := map[string]struct{}{}
	var errs error

	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		seen[d.ID] = struct{}{}

		if _, exists := s.devices[d.ID]; exists {
			continue
		}
		if err := s.addDevice(ctx, d); err != nil {
			s.log.Warnw("device build failed", "device", d.ID, "type", d.Type, "error", err)
			errs = multierr.Append(errs, errcode.Wrap(errcode.Of(err), fmt.Sprintf("device %q", d.ID), err))
		}
	}

	// Tidy-up devices not in config
	for devID := range s.devices {
		if _, ok := seen[devID]; !ok {
			s.removeDevice(devID)
		}
	}
	s.met.SetDevices(len(s.devices))
	return errs
}

func (s *Service) addDevice(ctx context.Context, d *config.Device) error {
	b, ok := registry.Lookup(d.Type)
	if !ok {
		return errors.Wrapf(halerr.ErrUnknownType, "%q", d.Type)
	}
	out, err := b.Build(registry.BuildInput{
		Ctx:         ctx,
		Buses:       s.buses,
		DeviceID:    d.ID,
		Type:        d.Type,
		Params:      d.Params,
		Bus:         d.Bus,
		SampleEvery: d.SampleEvery,
		Logger:      s.zlog,
	})
	if err != nil {
		return err
	}

	busID := out.BusID
	if busID == "" {
		busID = d.ID
	}
	if _, ok := s.workers[busID]; !ok {
		w := worker.New(s.workerCfg, s.clk, s.results)
		w.Start(ctx)
		s.workers[busID] = w
	}

	ad := out.Adaptor
	entry := devEntry{adaptor: ad, busID: busID, caps: map[string]struct{}{}}
	now := s.clk.Now()
	for _, ci := range ad.Capabilities() {
		entry.caps[ci.Kind] = struct{}{}
		s.pubRet(ci.Kind, d.ID, consts.TokInfo, ci.Info)
		s.pubRet(ci.Kind, d.ID, consts.TokState, types.CapabilityState{Link: types.LinkUp, TS: now})
	}
	s.devices[d.ID] = entry
	s.log.Infow("device ready", "device", d.ID, "type", d.Type, "bus", busID)

	if out.SampleEvery > 0 {
		s.devPeriod[d.ID] = util.ClampDuration(out.SampleEvery, consts.MinPeriod, consts.MaxPeriod)
		// First reading shortly after configuration.
		s.devNextDue[d.ID] = now.Add(consts.FirstDelay)
	}
	return nil
}

func (s *Service) removeDevice(devID string) {
	ent := s.devices[devID]
	now := s.clk.Now()
	for kind := range ent.caps {
		s.pubRet(kind, devID, consts.TokInfo, nil)
		s.pubRet(kind, devID, consts.TokState, types.CapabilityState{Link: types.LinkDown, TS: now})
	}
	if err := ent.adaptor.Close(); err != nil {
		s.log.Warnw("device close failed", "device", devID, "error", err)
	}
	delete(s.devices, devID)
	delete(s.devPeriod, devID)
	delete(s.devNextDue, devID)
	s.met.Forget(devID)
	s.log.Infow("device removed", "device", devID)
}

func (s *Service) shutdown() {
	for devID := range s.devices {
		s.removeDevice(devID)
	}
	s.met.SetDevices(0)
	s.publishState("stopped", "context_cancelled", nil)
}

// ---- measurement helpers ----

func (s *Service) submitMeasure(devID string, prio bool) bool {
	ent, ok := s.devices[devID]
	if !ok {
		return false
	}
	w := s.workers[ent.busID]
	if w == nil {
		return false
	}
	return w.Submit(halcore.MeasureReq{ID: devID, Adaptor: ent.adaptor, Prio: prio})
}

func (s *Service) bumpDevNext(devID string, from time.Time) {
	period, ok := s.devPeriod[devID]
	if !ok {
		return // not a periodic producer
	}
	period = util.ClampDuration(period, consts.MinPeriod, consts.MaxPeriod)
	s.devNextDue[devID] = from.Add(period)
}

func (s *Service) earliestDevDue() time.Time {
	var min time.Time
	for _, t := range s.devNextDue {
		if !t.IsZero() && (min.IsZero() || t.Before(min)) {
			min = t
		}
	}
	return min
}

// ---- results ----

func (s *Service) handleResult(r halcore.Result) {
	ent, ok := s.devices[r.ID]
	if !ok {
		return
	}
	now := s.clk.Now()

	if r.Err != nil {
		code := errcode.Of(r.Err)
		s.met.ObserveResult(r.ID, r.Retries, string(code))
		s.log.Warnw("measurement failed", "device", r.ID, "code", code, "error", r.Err)
		for kind := range ent.caps {
			s.pubRet(kind, r.ID, consts.TokState, types.CapabilityState{
				Link:  types.LinkDegraded,
				TS:    now,
				Error: string(code),
			})
		}
		return
	}
	s.met.ObserveResult(r.ID, r.Retries, "")
	for _, rd := range r.Sample {
		if _, ok := ent.caps[rd.Kind]; !ok {
			continue
		}
		if m, ok := rd.Payload.(types.Measurement); ok {
			s.met.ObserveReading(r.ID, rd.Kind, m.Value)
		}
		s.conn.Publish(s.conn.NewMessage(capTopic(rd.Kind, r.ID, consts.TokValue), rd.Payload, false))
		s.pubRet(rd.Kind, r.ID, consts.TokState, types.CapabilityState{Link: types.LinkUp, TS: now})
	}
}

// ---- bus helpers ----

func (s *Service) publishState(level, status string, err error) {
	pl := types.HALState{Level: level, Status: status, TS: s.clk.Now()}
	if err != nil {
		pl.Error = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(bus.Topic{consts.TokHAL, consts.TokState}, pl, true))
}

func (s *Service) replyErr(req *bus.Message, err error) {
	if len(req.ReplyTo) == 0 {
		return
	}
	code := errcode.Of(err)
	s.log.Debugw("control rejected", "topic", req.Topic.String(), "code", code, "error", err)
	s.conn.Reply(req, types.ErrorReply{OK: false, Error: string(code)}, false)
}

func capTopic(kind, devID, suffix string) bus.Topic {
	return bus.Topic{consts.TokHAL, consts.TokCapability, kind, devID, suffix}
}

// CapTopic is the topic for suffix ("value", "state", "info", "control")
// of one device capability.
func CapTopic(kind, devID, suffix string) bus.Topic { return capTopic(kind, devID, suffix) }

func (s *Service) pubRet(kind, devID, suffix string, p any) {
	s.conn.Publish(s.conn.NewMessage(capTopic(kind, devID, suffix), p, true))
}
