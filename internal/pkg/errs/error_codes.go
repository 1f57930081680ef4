/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific protocol or system errors
both internally within the relay and in communication with clients and operators.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001
)

// 2xxx: Room Membership and Delivery Errors
const (
	// ErrNameTaken indicates that the requested display name is used by another participant.
	ErrNameTaken = 2101

	// ErrAlreadyJoined indicates that the connection is already registered in the room.
	ErrAlreadyJoined = 2102

	// ErrRecipientNotFound indicates that a private message named a participant who is not in the room.
	ErrRecipientNotFound = 2201

	// ErrEmptyMessage indicates that the submitted text was empty after trimming.
	ErrEmptyMessage = 2202

	// ErrInvalidRecipient indicates a private message addressed to the sender itself.
	ErrInvalidRecipient = 2203

	// ErrNotJoined indicates an operation that requires the connection to be in the room.
	ErrNotJoined = 2204
)

// 3xxx: Operator Surface Errors
const (
	// ErrJournalDisabled indicates that the participant journal was not configured.
	ErrJournalDisabled = 3001
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
