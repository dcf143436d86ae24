package tui

import "strings"

type Option func(*Model)

// WithWorkerID sets the operator whose attendance the dashboard tracks.
func WithWorkerID(id string) Option {
	return func(m *Model) {
		m.workerID = strings.TrimSpace(id)
	}
}

// WithShowCancelled keeps cancelled items visible on the all-items board.
func WithShowCancelled(show bool) Option {
	return func(m *Model) {
		m.showCancelled = show
	}
}
