// Structure of the game telemetry wire models in CareCast.

package entity

import "encoding/json"

// Activity kinds reported by the rehabilitation games.
const (
	KindCoordination = "coordination"
	KindReaction     = "reaction"
	KindCognitive    = "cognitive"
)

// Older game builds report these aliases instead of the canonical kinds.
var activityAliases = map[string]string{
	"hand":   KindCoordination,
	"fruit":  KindReaction,
	"number": KindCognitive,
}

var activityLabels = map[string]string{
	KindCoordination: "hand-eye coordination",
	KindReaction:     "reaction speed",
	KindCognitive:    "cognitive training",
}

// NormalizeActivityKind maps legacy game type aliases onto the canonical kinds.
// Unknown kinds are returned unchanged.
func NormalizeActivityKind(kind string) string {
	if canonical, ok := activityAliases[kind]; ok {
		return canonical
	}
	return kind
}

// IsActivityKind reports whether kind is a known game type, alias included.
func IsActivityKind(kind string) bool {
	_, ok := activityLabels[NormalizeActivityKind(kind)]
	return ok
}

// ActivityLabel returns a human readable name for an activity kind.
// Used in upload confirmations shown to the patient side.
func ActivityLabel(kind string) string {
	if label, ok := activityLabels[NormalizeActivityKind(kind)]; ok {
		return label
	}
	return kind
}

// SubjectID is an opaque patient identifier.
// Older game builds send it as a JSON number, newer ones as a string.
type SubjectID string

func (id *SubjectID) UnmarshalJSON(raw []byte) error {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		*id = SubjectID(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return err
	}
	*id = SubjectID(num.String())
	return nil
}

// GameUpload is the unit on the wire between a game session and the relay.
// ScoreIncrease and TimeIncrease are deltas since the previous dispatched
// upload of the session, never cumulative totals.
type GameUpload struct {
	PatientID     SubjectID `json:"patientId" valid:"required~patientId:Patient ID is mandatory,nospace~patientId:Patient ID can't contain whitespace"`
	GameType      string    `json:"gameType" valid:"required~gameType:Game type is mandatory"`
	ScoreIncrease int       `json:"scoreIncrease" valid:"range(0|100000000)~scoreIncrease:Score increase must be non-negative,optional"`
	TimeIncrease  int       `json:"timeIncrease" valid:"range(0|100000000)~timeIncrease:Time increase must be non-negative,optional"`
	Timestamp     string    `json:"timestamp" valid:"iso8601~timestamp:Must be an ISO-8601 timestamp,optional"`
	IsFinalUpload bool      `json:"isFinalUpload" valid:"-"`
	Source        string    `json:"source,omitempty" valid:"-"`
}

// RelayEntry is a GameUpload as recorded by the relay, stamped with the
// server-side receipt time.
type RelayEntry struct {
	GameUpload
	ServerTime string `json:"serverTime"`
}
