package domain

import "strconv"

// UserID identifies a user. Persisted ids are positive.
type UserID int64

// NoUser marks a connection that is not bound to a user.
const NoUser UserID = 0

func (id UserID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseUserID parses a positive decimal user id.
func ParseUserID(s string) (UserID, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return NoUser, false
	}
	return UserID(n), true
}

// RoomID is the opaque external room identifier clients connect with.
type RoomID string
