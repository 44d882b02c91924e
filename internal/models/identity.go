package models

// Identity is the authenticated caller of an API operation.
type Identity struct {
	// ID is the federated identity id (Cognito identity id in AWS)
	ID string

	// AuthProvider is the authentication provider string used to look up a display name
	AuthProvider string

	// Name is a display name supplied by the front door, if any
	Name string
}
