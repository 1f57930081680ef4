/*
Package client implements the participant side of the relay protocol.

This file turns a line typed by the local user into an Input: a public message, or a
private one when the line starts with "/mp <name>".
*/
package client

import (
	"strings"

	"relaychat/internal/pkg/errs"
)

// privatePrefix starts a private message: "/mp <name> <text>".
const privatePrefix = "/mp "

// Input is one line typed by the local user.
type Input struct {
	// Private is set for "/mp" lines.
	Private bool

	// To is the recipient name of a private line.
	To string

	// Text is the message body.
	Text string
}

// ParseInput turns a typed line into an Input. Lines starting with "/mp " are private
// messages; anything else is a broadcast. Empty or whitespace-only text is rejected.
func ParseInput(line string) (Input, error) {
	if !strings.HasPrefix(line, privatePrefix) {
		if strings.TrimSpace(line) == "" {
			return Input{}, errs.NewError(errs.ErrEmptyMessage)
		}
		return Input{Text: line}, nil
	}

	rest := strings.TrimLeft(line[len(privatePrefix):], " ")
	to, text, found := strings.Cut(rest, " ")
	if to == "" {
		return Input{}, errs.NewError(errs.ErrInvalidRecipient)
	}
	if !found || strings.TrimSpace(text) == "" {
		return Input{}, errs.NewError(errs.ErrEmptyMessage)
	}

	return Input{Private: true, To: to, Text: text}, nil
}
