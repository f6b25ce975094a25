// Package user defines the user model handed from the session gate to
// the bookmark list controller.
package user

// User represents an authenticated backend user.
type User struct {
	// ID is the unique identifier of the user, meaning a UUID.
	ID string

	// Email is the address the identity provider reported for the user.
	Email string
}
