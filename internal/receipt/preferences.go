package receipt

import "log/slog"

// Preferences exposes the persisted capture mode to the engine
type Preferences struct {
	db DB
}

// NewPreferences creates Preferences backed by db
func NewPreferences(db DB) *Preferences {
	return &Preferences{db: db}
}

// AutoSubmit reports whether recognition should also save the bill.
// A read failure falls back to automatic mode.
func (p *Preferences) AutoSubmit() bool {
	enabled, err := p.db.AutoSubmit()
	if err != nil {
		slog.Warn("Failed to read capture mode, using automatic", "error", err)
		return true
	}
	return enabled
}
