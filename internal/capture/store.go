package capture

import "github.com/zzjbattlefield/smart-ledger-web/internal/ledger"

// Store is the ordered queue of items plus the active selection.
// Every operation is total: an unknown id is a no-op. Store is not safe for
// concurrent use; the Engine owns one and only touches it from its loop.
type Store struct {
	items  []*Item
	active string
}

// NewStore creates an empty Store
func NewStore() *Store {
	return &Store{}
}

// Add appends items in order. If nothing is active the first new item
// becomes active.
func (s *Store) Add(items ...Item) {
	for i := range items {
		item := items[i]
		s.items = append(s.items, &item)
	}
	if s.active == "" && len(items) > 0 {
		s.active = items[0].ID
	}
}

// Remove deletes an item. Removing the active item activates the first
// remaining item, or nothing when the queue is empty.
func (s *Store) Remove(id string) {
	idx := s.index(id)
	if idx < 0 {
		return
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	if s.active != id {
		return
	}
	s.active = ""
	if len(s.items) > 0 {
		s.active = s.items[0].ID
	}
}

// SetActive selects the item shown on the review surface
func (s *Store) SetActive(id string) {
	if s.index(id) >= 0 {
		s.active = id
	}
}

// UpdateStatus moves an item to status
func (s *Store) UpdateStatus(id string, status Status) {
	if item := s.get(id); item != nil {
		item.Status = status
	}
}

// UpdateForm applies a user edit and remembers which fields were touched
func (s *Store) UpdateForm(id string, patch FormPatch) {
	if item := s.get(id); item != nil {
		var touched fieldMask
		item.Form, touched = item.Form.apply(patch)
		item.touched |= touched
	}
}

// AttachResult records the last extract-only recognition
func (s *Store) AttachResult(id string, result *ledger.Recognition) {
	if item := s.get(id); item != nil {
		item.Result = result
	}
}

// AttachServerID records the server id. It is set at most once.
func (s *Store) AttachServerID(id string, serverID int64) {
	if item := s.get(id); item != nil && item.ServerID == 0 {
		item.ServerID = serverID
	}
}

// Get returns a copy of the item
func (s *Store) Get(id string) (Item, bool) {
	if item := s.get(id); item != nil {
		return *item, true
	}
	return Item{}, false
}

// Items returns copies of all items in queue order
func (s *Store) Items() []Item {
	out := make([]Item, len(s.items))
	for i, item := range s.items {
		out[i] = *item
	}
	return out
}

// Active returns the id of the active item, or "" when none is
func (s *Store) Active() string {
	return s.active
}

// Len returns the number of queued items
func (s *Store) Len() int {
	return len(s.items)
}

// firstWith returns the first item, in queue order, whose status is in
// statuses and whose id is not skip
func (s *Store) firstWith(skip string, statuses ...Status) (*Item, bool) {
	for _, item := range s.items {
		if item.ID == skip {
			continue
		}
		for _, status := range statuses {
			if item.Status == status {
				return item, true
			}
		}
	}
	return nil, false
}

// nextPreferring walks statuses in priority order and returns the first
// matching item in queue order, skipping skip
func (s *Store) nextPreferring(skip string, statuses ...Status) (*Item, bool) {
	for _, status := range statuses {
		if item, ok := s.firstWith(skip, status); ok {
			return item, true
		}
	}
	return nil, false
}

func (s *Store) setForm(id string, form Form) {
	if item := s.get(id); item != nil {
		item.Form = form
	}
}

func (s *Store) setErr(id, msg string) {
	if item := s.get(id); item != nil {
		item.Err = msg
	}
}

func (s *Store) setPreSave(id string, status Status) {
	if item := s.get(id); item != nil {
		item.preSave = status
	}
}

func (s *Store) get(id string) *Item {
	if idx := s.index(id); idx >= 0 {
		return s.items[idx]
	}
	return nil
}

func (s *Store) index(id string) int {
	for i, item := range s.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}
