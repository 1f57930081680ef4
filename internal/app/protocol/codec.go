/*
Package protocol defines the closed set of messages exchanged between relay clients and the server.

This file implements the JSON wire encoding: a top-level object whose "type" field selects
the variant, followed by the variant's own fields.
*/
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/samber/lo"

	"relaychat/internal/app/user"
)

// ParseError reports a payload that could not be turned into a Message.
// It is never fatal to a connection: the offending payload is dropped.
type ParseError struct {
	// Type is the discriminator, when one could be read.
	Type MessageType

	// Reason describes what was wrong with the payload.
	Reason string

	// Err is the underlying decoding error, if any.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	msg := "parse message"
	if e.Type != "" {
		msg = fmt.Sprintf("parse %q message", e.Type)
	}

	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", msg, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", msg, e.Reason)
}

// Unwrap returns the underlying decoding error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// ErrUnknownMessage is returned by Serialize for a Message implementation outside this package.
var ErrUnknownMessage = errors.New("unknown message variant")

// ErrInvalidUTF8 is returned by Serialize when a text field is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("text is not valid UTF-8")

type joinRequestWire struct {
	Type MessageType `json:"type"`
	Name *string     `json:"name"`
}

type joinResponseWire struct {
	Type      MessageType        `json:"type"`
	Success   *bool              `json:"success"`
	UsersList []user.Participant `json:"users_list"`
	ErrorMsg  *string            `json:"error_msg"`
}

type userEventWire struct {
	Type MessageType `json:"type"`
	Name *string     `json:"name"`
	Host *string     `json:"host"`
	Port *int        `json:"port"`
}

type chatMessageWire struct {
	Type     MessageType `json:"type"`
	Private  *bool       `json:"private"`
	Sender   *string     `json:"sender"`
	Receiver *string     `json:"receiver,omitempty"`
	Message  *string     `json:"message"`
}

type bareWire struct {
	Type MessageType `json:"type"`
}

// Serialize encodes msg as a UTF-8 JSON object with a "type" discriminator.
func Serialize(msg Message) ([]byte, error) {
	if !lo.EveryBy(textFields(msg), utf8.ValidString) {
		return nil, fmt.Errorf("serialize %s: %w", msg.Type(), ErrInvalidUTF8)
	}

	var wire any

	switch m := msg.(type) {
	case JoinRequest:
		wire = joinRequestWire{Type: m.Type(), Name: &m.Name}

	case JoinResponse:
		w := joinResponseWire{Type: m.Type(), Success: &m.Success, UsersList: m.Roster}
		if m.Error != "" {
			w.ErrorMsg = &m.Error
		}
		wire = w

	case UserJoined:
		wire = newUserEventWire(m.Type(), m.Participant)

	case UserLeft:
		wire = newUserEventWire(m.Type(), m.Participant)

	case ChatMessage:
		w := chatMessageWire{Type: m.Type(), Private: &m.Private, Sender: &m.Sender, Message: &m.Text}
		if m.Receiver != "" {
			w.Receiver = &m.Receiver
		}
		wire = w

	case LeaveRequest, LeaveResponse:
		wire = bareWire{Type: m.Type()}

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("serialize %s: %w", msg.Type(), err)
	}

	return data, nil
}

// textFields lists the free-form strings carried by msg.
func textFields(msg Message) []string {
	switch m := msg.(type) {
	case JoinRequest:
		return []string{m.Name}
	case JoinResponse:
		fields := []string{m.Error}
		for _, p := range m.Roster {
			fields = append(fields, p.Name, p.Host)
		}
		return fields
	case UserJoined:
		return []string{m.Participant.Name, m.Participant.Host}
	case UserLeft:
		return []string{m.Participant.Name, m.Participant.Host}
	case ChatMessage:
		return []string{m.Sender, m.Receiver, m.Text}
	}
	return nil
}

func newUserEventWire(t MessageType, p user.Participant) userEventWire {
	return userEventWire{Type: t, Name: &p.Name, Host: &p.Host, Port: &p.Port}
}

// Parse decodes one payload into a Message.
// Malformed JSON, a missing or unknown "type", and missing required fields all yield a *ParseError.
func Parse(data []byte) (Message, error) {
	var envelope struct {
		Type *MessageType `json:"type"`
	}

	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, &ParseError{Reason: "malformed payload", Err: err}
	}

	if envelope.Type == nil {
		return nil, &ParseError{Reason: `missing "type" field`}
	}

	t := *envelope.Type

	switch t {
	case TypeJoinRequest:
		var w joinRequestWire
		if err := decode(t, data, &w); err != nil {
			return nil, err
		}
		if w.Name == nil {
			return nil, missing(t, "name")
		}
		return JoinRequest{Name: *w.Name}, nil

	case TypeJoinResponse:
		var w joinResponseWire
		if err := decode(t, data, &w); err != nil {
			return nil, err
		}
		if w.Success == nil {
			return nil, missing(t, "success")
		}
		resp := JoinResponse{Success: *w.Success, Roster: w.UsersList}
		if w.ErrorMsg != nil {
			resp.Error = *w.ErrorMsg
		}
		return resp, nil

	case TypeUserJoined, TypeUserLeft:
		var w userEventWire
		if err := decode(t, data, &w); err != nil {
			return nil, err
		}
		p, err := w.participant(t)
		if err != nil {
			return nil, err
		}
		if t == TypeUserJoined {
			return UserJoined{Participant: p}, nil
		}
		return UserLeft{Participant: p}, nil

	case TypeChatMessage:
		var w chatMessageWire
		if err := decode(t, data, &w); err != nil {
			return nil, err
		}
		if w.Private == nil {
			return nil, missing(t, "private")
		}
		if w.Message == nil {
			return nil, missing(t, "message")
		}
		msg := ChatMessage{Private: *w.Private, Text: *w.Message}
		if w.Sender != nil {
			msg.Sender = *w.Sender
		}
		if w.Receiver != nil {
			msg.Receiver = *w.Receiver
		}
		return msg, nil

	case TypeLeaveRequest:
		return LeaveRequest{}, nil

	case TypeLeaveResponse:
		return LeaveResponse{}, nil

	default:
		return nil, &ParseError{Type: t, Reason: "unrecognized message type"}
	}
}

func (w userEventWire) participant(t MessageType) (user.Participant, error) {
	switch {
	case w.Name == nil:
		return user.Participant{}, missing(t, "name")
	case w.Host == nil:
		return user.Participant{}, missing(t, "host")
	case w.Port == nil:
		return user.Participant{}, missing(t, "port")
	}

	return user.Participant{
		Address: user.Address{Host: *w.Host, Port: *w.Port},
		Name:    *w.Name,
	}, nil
}

func decode(t MessageType, data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return &ParseError{Type: t, Reason: "invalid field", Err: err}
	}
	return nil
}

func missing(t MessageType, field string) error {
	return &ParseError{Type: t, Reason: fmt.Sprintf("missing required field %q", field)}
}
