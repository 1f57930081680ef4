/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
join rejections, client-side notices, and HTTP responses of the admin surface.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams: {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},

	// 2xxx: Room Membership and Delivery Errors
	ErrNameTaken:         {Code: ErrNameTaken, Message: "Display name is already in use. Please choose another name."},
	ErrAlreadyJoined:     {Code: ErrAlreadyJoined, Message: "You are already in the chat room."},
	ErrRecipientNotFound: {Code: ErrRecipientNotFound, Message: "User %q not found."},
	ErrEmptyMessage:      {Code: ErrEmptyMessage, Message: "Message must not be empty."},
	ErrInvalidRecipient:  {Code: ErrInvalidRecipient, Message: "Invalid user for private message."},
	ErrNotJoined:         {Code: ErrNotJoined, Message: "You are not in the chat room."},

	// 3xxx: Operator Surface Errors
	ErrJournalDisabled: {Code: ErrJournalDisabled, Message: "Participant journal is not enabled.", Status: http.StatusNotFound},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
