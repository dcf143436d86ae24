package domain

import (
	"slices"
	"strings"
	"time"
)

// Role distinguishes administrators from field workers.
type Role string

// Role values.
const (
	RoleAdmin  Role = "admin"
	RoleWorker Role = "worker"
)

var validRoles = []Role{RoleAdmin, RoleWorker}

// Worker is a member of the condominium workforce roster.
type Worker struct {
	ID        string
	Name      string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewWorker validates input and constructs a worker.
func NewWorker(id, name string, role Role, now time.Time) (Worker, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" {
		return Worker{}, ErrInvalidID
	}
	if name == "" {
		return Worker{}, ErrInvalidName
	}
	if role == "" {
		role = RoleWorker
	}
	role = Role(strings.TrimSpace(strings.ToLower(string(role))))
	if !slices.Contains(validRoles, role) {
		return Worker{}, ErrInvalidRole
	}
	return Worker{
		ID:        id,
		Name:      name,
		Role:      role,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

// Rename updates the worker's display name.
func (w *Worker) Rename(name string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	w.Name = name
	w.UpdatedAt = now.UTC()
	return nil
}
