package channel

import "log"

// Announcer posts a short notification to one destination.
type Announcer interface {
	Name() string
	Announce(text string) error
}

// Manager fans announcements out to every configured announcer.
type Manager struct {
	announcers []Announcer
}

// NewManager creates a manager over the given announcers.
func NewManager(announcers ...Announcer) *Manager {
	return &Manager{announcers: announcers}
}

// Add registers another announcer.
func (m *Manager) Add(a Announcer) {
	m.announcers = append(m.announcers, a)
}

// Announce delivers the text to every announcer. A failing channel is
// logged and never blocks delivery to the others.
func (m *Manager) Announce(text string) {
	for _, a := range m.announcers {
		if err := a.Announce(text); err != nil {
			log.Printf("[channel-mgr] announce to %s failed: %v", a.Name(), err)
		}
	}
}

// Names lists the registered announcer names.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.announcers))
	for _, a := range m.announcers {
		names = append(names, a.Name())
	}
	return names
}
