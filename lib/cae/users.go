package cae

import "time"

//UserID uniquely identifies a Caelium user.
type UserID uint64

//User is a chat participant as the API represents them.
type User struct {
	ID     UserID `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

//Participant is a user plus their conversation-scoped last-seen time.
type Participant struct {
	User
	LastSeen time.Time `json:"last_seen,omitempty"`
}
