/*
Package protocol defines the closed set of messages exchanged between relay clients and the server.

This file declares the message variants and their type discriminators. Every variant is an
immutable value; none of them refers to a connection. Wire (de)serialization lives in codec.go.
*/
package protocol

import "relaychat/internal/app/user"

// MessageType is the discriminator carried in the "type" field of every payload.
type MessageType string

const (
	// TypeJoinRequest is sent by a client asking to enter the room under a display name.
	TypeJoinRequest MessageType = "connection-request"

	// TypeJoinResponse answers a join request with either the roster or a rejection reason.
	TypeJoinResponse MessageType = "connection-response"

	// TypeUserJoined notifies joined participants that someone entered the room.
	TypeUserJoined MessageType = "user-joined"

	// TypeUserLeft notifies joined participants that someone left the room.
	TypeUserLeft MessageType = "user-left"

	// TypeChatMessage carries a broadcast or private chat line, in both directions.
	TypeChatMessage MessageType = "chat-message"

	// TypeLeaveRequest is sent by a client leaving the room.
	TypeLeaveRequest MessageType = "disconnection-request"

	// TypeLeaveResponse acknowledges a leave request.
	TypeLeaveResponse MessageType = "disconnection-response"
)

// Message is implemented by every protocol message variant.
type Message interface {
	// Type returns the wire discriminator of the message.
	Type() MessageType
}

// JoinRequest asks the server to register the connection under Name.
type JoinRequest struct {
	Name string
}

// JoinResponse is the server's answer to a JoinRequest.
// On success Roster lists the participants that were already in the room;
// on failure Error holds a human-readable reason.
type JoinResponse struct {
	Success bool
	Roster  []user.Participant
	Error   string
}

// UserJoined announces a new participant to everyone already in the room.
type UserJoined struct {
	user.Participant
}

// UserLeft announces that a participant is no longer in the room.
type UserLeft struct {
	user.Participant
}

// ChatMessage is a line of chat. Receiver is set only on private messages sent by a client.
type ChatMessage struct {
	Private  bool
	Sender   string
	Receiver string
	Text     string
}

// LeaveRequest asks the server to remove the connection from the room.
type LeaveRequest struct{}

// LeaveResponse acknowledges a LeaveRequest.
type LeaveResponse struct{}

func (JoinRequest) Type() MessageType   { return TypeJoinRequest }
func (JoinResponse) Type() MessageType  { return TypeJoinResponse }
func (UserJoined) Type() MessageType    { return TypeUserJoined }
func (UserLeft) Type() MessageType      { return TypeUserLeft }
func (ChatMessage) Type() MessageType   { return TypeChatMessage }
func (LeaveRequest) Type() MessageType  { return TypeLeaveRequest }
func (LeaveResponse) Type() MessageType { return TypeLeaveResponse }
