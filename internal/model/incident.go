package model

import (
	"fmt"
	"time"
)

// Incident is a confirmed attack that led to an enforcement action.
type Incident struct {
	EventID        string
	IP             string
	Classification string
	Action         string
	At             time.Time
}

func (i Incident) String() string {
	return fmt.Sprintf("%s %s classified %s, action %s (event %s)",
		i.At.UTC().Format(time.RFC3339), i.IP, i.Classification, i.Action, i.EventID)
}

// IncidentSink receives incidents as they are confirmed. Report must not block.
type IncidentSink interface {
	Report(Incident)
}
