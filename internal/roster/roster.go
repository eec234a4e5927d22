// Package roster is the identity/roster collaborator boundary. The engine
// never evaluates audience membership itself; it asks this port for a boolean.
package roster

import (
	"context"

	"github.com/google/uuid"

	"github.com/campushours/booking-engine/internal/booking"
)

// StaticChecker evaluates audience rules against in-memory membership sets
// and satisfies booking.AudienceChecker. Suitable for tests, seeds, and
// single-campus deployments where rosters are loaded up front.
type StaticChecker struct {
	// Departments maps providerID -> requester set sharing the department.
	Departments map[uuid.UUID]map[uuid.UUID]bool
	// Rosters maps providerID -> requester set sharing a course roster.
	Rosters map[uuid.UUID]map[uuid.UUID]bool
	// Approved maps providerID -> explicitly approved requester set.
	Approved map[uuid.UUID]map[uuid.UUID]bool
}

func NewStaticChecker() *StaticChecker {
	return &StaticChecker{
		Departments: make(map[uuid.UUID]map[uuid.UUID]bool),
		Rosters:     make(map[uuid.UUID]map[uuid.UUID]bool),
		Approved:    make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

func (c *StaticChecker) IsAuthorizedRequester(_ context.Context, providerID, requesterID uuid.UUID, audience booking.Audience) (bool, error) {
	switch audience {
	case booking.AudienceAll:
		return true, nil
	case booking.AudienceDepartment:
		return c.Departments[providerID][requesterID], nil
	case booking.AudienceCourseRoster:
		return c.Rosters[providerID][requesterID], nil
	case booking.AudienceApprovedList:
		return c.Approved[providerID][requesterID], nil
	}
	return false, nil
}

// Allow registers a requester in the given membership map.
func Allow(m map[uuid.UUID]map[uuid.UUID]bool, providerID, requesterID uuid.UUID) {
	if m[providerID] == nil {
		m[providerID] = make(map[uuid.UUID]bool)
	}
	m[providerID][requesterID] = true
}
