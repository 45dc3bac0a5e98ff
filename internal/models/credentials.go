package models

// Credentials is the transient username/password pair a user types in.
// It exists only for the duration of a login or register call and is never
// persisted anywhere.
type Credentials struct {
	Username string
	Password string
}
