package planning

import "time"

type EventKind string

const (
	EventAmendmentSaved    EventKind = "amendment_saved"
	EventAmendmentApproved EventKind = "amendment_approved"
	EventAmendmentRejected EventKind = "amendment_rejected"
	EventAmendmentModified EventKind = "amendment_modified"
	EventWeekSubmitted     EventKind = "week_submitted"
	EventWeekStatus        EventKind = "week_status_changed"
	EventHierarchySynced   EventKind = "hierarchy_synced"
	EventUploadCompleted   EventKind = "upload_completed"
)

// ChangeEvent tells subscribers that some week's data moved. Consumers are
// expected to refetch rather than apply the event.
type ChangeEvent struct {
	Kind          EventKind `json:"kind"`
	WeekReference string    `json:"week_reference,omitempty"`
	StoreID       string    `json:"store_id,omitempty"`
	EntityID      string    `json:"entity_id,omitempty"`
	ActorID       string    `json:"actor_id,omitempty"`
	At            time.Time `json:"at"`
}

// Publisher receives change events. Publish must not block.
type Publisher interface {
	Publish(ChangeEvent)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ChangeEvent)

func (f PublisherFunc) Publish(e ChangeEvent) { f(e) }

func publish(p Publisher, e ChangeEvent) {
	if p == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	p.Publish(e)
}
