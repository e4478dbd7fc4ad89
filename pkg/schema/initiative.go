package schema

import "time"

// Status enumerates the lifecycle states of an initiative.
type Status string

const (
	StatusNotStarted Status = "Not Started"
	StatusInProgress Status = "In Progress"
	StatusAtRisk     Status = "At Risk"
	StatusDone       Status = "Done"
	StatusObsolete   Status = "Obsolete"
)

// statusAdvance is the fixed advancement table used by transition_status.
// Terminal states map to themselves.
var statusAdvance = map[Status]Status{
	StatusNotStarted: StatusInProgress,
	StatusInProgress: StatusAtRisk,
	StatusAtRisk:     StatusDone,
	StatusDone:       StatusDone,
	StatusObsolete:   StatusObsolete,
}

// NextStatus returns the status an initiative advances to from s.
// The second return value is false when s is not a recognized status.
func NextStatus(s Status) (Status, bool) {
	next, ok := statusAdvance[s]
	return next, ok
}

// Comment is a single entry in an initiative's comment list.
type Comment struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"author_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Initiative is the mutable business record the automation engine reads
// and writes. The surrounding application owns its lifecycle; the engine
// is handed a snapshot and mutates elements in place.
//
// Eta is an ISO date string (YYYY-MM-DD) so due-date conditions compare
// lexicographically.
type Initiative struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Status          Status    `json:"status"`
	Priority        string    `json:"priority,omitempty"`
	Owner           string    `json:"owner,omitempty"`
	AssetClass      string    `json:"asset_class,omitempty"`
	WorkType        string    `json:"work_type,omitempty"`
	Eta             string    `json:"eta,omitempty"`
	EstimatedEffort float64   `json:"estimated_effort,omitempty"`
	ActualEffort    float64   `json:"actual_effort,omitempty"`
	RiskActionLog   string    `json:"risk_action_log,omitempty"`
	Comments        []Comment `json:"comments,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	LastUpdated     time.Time `json:"last_updated"`
}

// Clone returns a deep copy of the initiative. Used by the trigger
// dispatcher to diff before/after snapshots.
func (i *Initiative) Clone() *Initiative {
	if i == nil {
		return nil
	}
	c := *i
	if len(i.Comments) > 0 {
		c.Comments = make([]Comment, len(i.Comments))
		copy(c.Comments, i.Comments)
	}
	return &c
}

// RecordChange is the caller-supplied audit callback. The engine invokes it
// synchronously, once per actually-changed field, before applying the
// mutation. It is never called when the new value equals the old one.
type RecordChange func(rec *Initiative, field string, oldValue, newValue any)
