package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrBadPairKey = errors.New("malformed pair key")

// Role is the side a staff member takes in a thread.
type Role string

const (
	RoleCoordinator Role = "coordinator"
	RoleCounterpart Role = "counterpart"
)

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleCoordinator || r == RoleCounterpart
}

// Other returns the opposite role.
func (r Role) Other() Role {
	if r == RoleCoordinator {
		return RoleCounterpart
	}
	return RoleCoordinator
}

// Identity is a staff member as supplied by the identity provider.
type Identity struct {
	ID            int64  `db:"id" json:"id"`
	Role          Role   `db:"role" json:"role"`
	DisplayName   string `db:"display_name" json:"display_name"`
	Authenticated bool   `db:"-" json:"-"`
}

// CanChat reports whether the identity is allowed to open a messaging session.
func (i Identity) CanChat() bool {
	return i.Authenticated && i.ID != 0 && i.Role.Valid()
}

// ThreadID identifies a thread from one viewer's perspective: it is the id of
// the other participant.
type ThreadID int64

// PairKey is the room key shared by both participants of a thread.
func PairKey(coordinatorID, counterpartID int64) string {
	return fmt.Sprintf("%d:%d", coordinatorID, counterpartID)
}

// PairKeyFor returns the room key of the thread between viewer and peer.
func PairKeyFor(viewer Identity, peer ThreadID) string {
	if viewer.Role == RoleCoordinator {
		return PairKey(viewer.ID, int64(peer))
	}
	return PairKey(int64(peer), viewer.ID)
}

// ParsePairKey splits a room key into its coordinator and counterpart ids.
func ParsePairKey(key string) (coordinatorID, counterpartID int64, err error) {
	left, right, ok := strings.Cut(key, ":")
	if !ok {
		return 0, 0, ErrBadPairKey
	}
	if coordinatorID, err = strconv.ParseInt(left, 10, 64); err != nil || coordinatorID <= 0 {
		return 0, 0, ErrBadPairKey
	}
	if counterpartID, err = strconv.ParseInt(right, 10, 64); err != nil || counterpartID <= 0 {
		return 0, 0, ErrBadPairKey
	}
	return coordinatorID, counterpartID, nil
}

// Participates reports whether the identity is one side of the pair.
func (i Identity) Participates(coordinatorID, counterpartID int64) bool {
	if i.Role == RoleCoordinator {
		return i.ID == coordinatorID
	}
	return i.ID == counterpartID
}
