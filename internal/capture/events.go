package capture

// EventKind names something that happened in the engine
type EventKind string

const (
	EventUpdated           EventKind = "updated"
	EventRecognized        EventKind = "recognized"
	EventRecognitionFailed EventKind = "recognitionFailed"
	EventSaved             EventKind = "saved"
	EventSaveFailed        EventKind = "saveFailed"
	EventRemoved           EventKind = "removed"
	EventNavigateAway      EventKind = "navigateAway"
)

// Event is delivered to observers after the snapshot it refers to has been
// published. ItemID is empty for EventUpdated.
type Event struct {
	Kind     EventKind
	ItemID   string
	Err      error
	Snapshot *Snapshot
}

// Observer receives engine events on the engine goroutine. It must not block
// and must not call back into the engine's blocking operations.
type Observer func(Event)

// Snapshot is an immutable view of the queue. A new one is published after
// every applied command.
type Snapshot struct {
	Items        []Item `json:"items"`
	ActiveID     string `json:"active_id,omitempty"`
	Analyzing    string `json:"analyzing,omitempty"`
	NavigateAway bool   `json:"navigate_away"`
	Version      uint64 `json:"version"`
}

// Item returns the item with id
func (s *Snapshot) Item(id string) (Item, bool) {
	for _, item := range s.Items {
		if item.ID == id {
			return item, true
		}
	}
	return Item{}, false
}

// Active returns the active item
func (s *Snapshot) Active() (Item, bool) {
	if s.ActiveID == "" {
		return Item{}, false
	}
	return s.Item(s.ActiveID)
}

// Count returns how many items have status
func (s *Snapshot) Count(status Status) int {
	n := 0
	for _, item := range s.Items {
		if item.Status == status {
			n++
		}
	}
	return n
}
