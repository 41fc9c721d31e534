// services/hal/internal/worker/measure_worker.go
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"

	"baro-go/services/hal/internal/halcore"
	"baro-go/services/hal/internal/util"
)

// MeasureWorker serialises trigger/collect cycles for every adaptor on one
// bus. Each adaptor has at most one cycle in flight.
type MeasureWorker struct {
	cfg  halcore.WorkerConfig
	clk  clock.Clock
	reqQ chan halcore.MeasureReq
	sink chan<- halcore.Result // fan-in sink owned by service

	pending  map[string]*collectItem
	want     map[string]bool
	collects []*collectItem
	timer    *clock.Timer
}

type collectItem struct {
	id      string
	adaptor halcore.Adaptor
	due     time.Time
	retries int
}

func New(cfg halcore.WorkerConfig, clk clock.Clock, sink chan<- halcore.Result) *MeasureWorker {
	if cfg.TriggerTimeout <= 0 {
		cfg.TriggerTimeout = 100 * time.Millisecond
	}
	if cfg.CollectTimeout <= 0 {
		cfg.CollectTimeout = 250 * time.Millisecond
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 15 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 6
	}
	if cfg.InputQueueSize <= 0 {
		cfg.InputQueueSize = 16
	}
	if clk == nil {
		clk = clock.New()
	}
	return &MeasureWorker{
		cfg:     cfg,
		clk:     clk,
		reqQ:    make(chan halcore.MeasureReq, cfg.InputQueueSize),
		sink:    sink,
		pending: map[string]*collectItem{},
		want:    map[string]bool{},
		timer:   clk.Timer(time.Hour),
	}
}

// Submit queues req. A full queue rejects ordinary requests at once and
// gives priority requests a short grace period.
func (w *MeasureWorker) Submit(req halcore.MeasureReq) bool {
	select {
	case w.reqQ <- req:
		return true
	default:
		if req.Prio {
			select {
			case w.reqQ <- req:
				return true
			case <-time.After(5 * time.Millisecond):
			}
		}
		return false
	}
}

func (w *MeasureWorker) Start(ctx context.Context) {
	if !w.timer.Stop() {
		util.DrainTimer(w.timer)
	}
	go w.run(ctx)
}

func (w *MeasureWorker) run(ctx context.Context) {
	for {
		next := w.minDue()
		if next.IsZero() {
			util.ResetTimer(w.timer, time.Hour)
		} else {
			util.ResetTimer(w.timer, next.Sub(w.clk.Now()))
		}
		select {
		case <-ctx.Done():
			w.timer.Stop()
			return
		case req := <-w.reqQ:
			if _, ok := w.pending[req.ID]; ok {
				if req.Prio {
					w.want[req.ID] = true
				}
				continue
			}
			if it := w.trigger(ctx, req.ID, req.Adaptor); it != nil {
				w.pending[req.ID] = it
				w.collects = append(w.collects, it)
			}
		case <-w.timer.C:
			w.collectDue(ctx)
		}
	}
}

// trigger starts a cycle. On failure it emits the error and returns nil.
func (w *MeasureWorker) trigger(ctx context.Context, id string, ad halcore.Adaptor) *collectItem {
	tctx, cancel := context.WithTimeout(ctx, w.cfg.TriggerTimeout)
	after, err := ad.Trigger(tctx)
	cancel()
	if err != nil {
		w.emit(ctx, halcore.Result{ID: id, Err: err})
		return nil
	}
	return &collectItem{id: id, adaptor: ad, due: w.clk.Now().Add(after)}
}

func (w *MeasureWorker) collectDue(ctx context.Context) {
	now := w.clk.Now()
	var keep []*collectItem
	for _, it := range w.collects {
		if now.Before(it.due) {
			keep = append(keep, it)
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, w.cfg.CollectTimeout)
		s, err := it.adaptor.Collect(cctx)
		cancel()
		switch {
		case err == nil:
			delete(w.pending, it.id)
			w.emit(ctx, halcore.Result{ID: it.id, Sample: s, Retries: it.retries})
			if w.want[it.id] {
				// A read_now arrived mid-cycle; give it a fresh reading.
				delete(w.want, it.id)
				if nit := w.trigger(ctx, it.id, it.adaptor); nit != nil {
					w.pending[it.id] = nit
					keep = append(keep, nit)
				}
			}
		case errors.Is(err, halcore.ErrNotReady) && it.retries < w.cfg.MaxRetries:
			it.retries++
			it.due = now.Add(w.cfg.RetryBackoff)
			keep = append(keep, it)
		default:
			delete(w.pending, it.id)
			w.emit(ctx, halcore.Result{ID: it.id, Err: err, Retries: it.retries})
			if w.want[it.id] {
				delete(w.want, it.id)
				if nit := w.trigger(ctx, it.id, it.adaptor); nit != nil {
					w.pending[it.id] = nit
					keep = append(keep, nit)
				}
			}
		}
	}
	w.collects = keep
}

func (w *MeasureWorker) emit(ctx context.Context, r halcore.Result) {
	select {
	case w.sink <- r:
	case <-ctx.Done():
	}
}

func (w *MeasureWorker) minDue() time.Time {
	var min time.Time
	for _, it := range w.collects {
		if min.IsZero() || it.due.Before(min) {
			min = it.due
		}
	}
	return min
}
