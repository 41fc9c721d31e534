// Package hal runs the sensor sampling service.
//
// The service waits for a HAL configuration on "config/hal", builds each
// device through the registry, samples it on its own period through one
// measure worker per bus, and publishes:
//
//	hal/state                                  retained service state
//	hal/capability/<kind>/<device>/info        retained capability info
//	hal/capability/<kind>/<device>/state       retained link state
//	hal/capability/<kind>/<device>/value       each measurement
//	hal/capability/<kind>/<device>/control/<verb>  read_now, set_rate
package hal

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"baro-go/bus"
	"baro-go/services/hal/internal/consts"
	_ "baro-go/services/hal/internal/devices/mpl3115a2"
	"baro-go/services/hal/internal/metrics"
	"baro-go/services/hal/internal/registry"
	"baro-go/services/hal/internal/service"
	"baro-go/types"
)

type (
	Service = service.Service
	Options = service.Options
	Metrics = metrics.Metrics
)

// New creates a service publishing on conn. Call Run to start it.
func New(conn *bus.Connection, opts Options) *Service { return service.New(conn, opts) }

// NewMetrics registers the HAL collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics { return metrics.New(reg) }

// DeviceTypes lists the device types the service can build.
func DeviceTypes() []string { return registry.Types() }

// Topic returns hal/capability/<kind>/<device>/<suffix>.
func Topic(kind types.Kind, device, suffix string) bus.Topic {
	return service.CapTopic(string(kind), device, suffix)
}

// ValueTopic is the topic measurements of one capability are published on.
// Use "+" for kind or device to match all.
func ValueTopic(kind, device string) bus.Topic {
	return service.CapTopic(kind, device, consts.TokValue)
}

// StateTopic is the retained service state topic.
func StateTopic() bus.Topic { return bus.Topic{consts.TokHAL, consts.TokState} }

// ReadNow asks for an immediate measurement of one capability.
func ReadNow(ctx context.Context, conn *bus.Connection, kind types.Kind, device string) error {
	reply, err := control(ctx, conn, kind, device, consts.CtrlReadNow, nil)
	if err != nil {
		return err
	}
	if _, ok := reply.(types.ReadNowAck); !ok {
		return errors.Errorf("hal: unexpected read_now reply %#v", reply)
	}
	return nil
}

// SetRate changes a device's sampling period and returns the period applied
// after clamping.
func SetRate(ctx context.Context, conn *bus.Connection, kind types.Kind, device string, period time.Duration) (time.Duration, error) {
	reply, err := control(ctx, conn, kind, device, consts.CtrlSetRate, types.SetRate{Period: period})
	if err != nil {
		return 0, err
	}
	ack, ok := reply.(types.SetRateAck)
	if !ok {
		return 0, errors.Errorf("hal: unexpected set_rate reply %#v", reply)
	}
	return ack.Period, nil
}

func control(ctx context.Context, conn *bus.Connection, kind types.Kind, device, verb string, payload any) (any, error) {
	topic := Topic(kind, device, consts.TokControl).Append(verb)
	reply, err := conn.RequestWait(ctx, conn.NewMessage(topic, payload, false))
	if err != nil {
		return nil, errors.Wrapf(err, "hal: %s", verb)
	}
	if e, ok := reply.Payload.(types.ErrorReply); ok {
		return nil, errors.Errorf("hal: %s %s/%s: %s", verb, kind, device, e.Error)
	}
	return reply.Payload, nil
}
