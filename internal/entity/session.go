// Structure of the game session model in CareCast.

package entity

import "time"

// Session is one active game run being tracked for telemetry purposes.
// It is volatile state owned by the uploader and never outlives the process.
// LastFlushScore and LastFlushSeconds form the watermark used to compute
// the next upload's deltas; both only ever move forward within a session.
type Session struct {
	SubjectID        string
	ActivityKind     string
	StartedAt        time.Time
	LastFlushScore   int
	LastFlushSeconds int
	Active           bool
}
