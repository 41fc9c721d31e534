// services/hal/internal/consts/consts.go
package consts

import "time"

// Top-level topics
const (
	TokConfig     = "config"
	TokHAL        = "hal"
	TokCapability = "capability"
	TokInfo       = "info"
	TokState      = "state"
	TokValue      = "value"
	TokControl    = "control"
)

// Control verbs
const (
	CtrlReadNow = "read_now"
	CtrlSetRate = "set_rate"
)

// Sampling period bounds and the delay before a new device's first read.
const (
	MinPeriod  = 200 * time.Millisecond
	MaxPeriod  = time.Hour
	FirstDelay = 200 * time.Millisecond
)
