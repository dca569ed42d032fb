package session

import (
	"errors"
	"fmt"
)

var (
	// ErrPrecondition reports a call made before its inputs are available,
	// such as joining before the user id has been resolved.
	ErrPrecondition = errors.New("precondition not met")
	// ErrAlreadyJoined reports a join while one is pending or established.
	ErrAlreadyJoined = errors.New("session already joined")
	// ErrNotConnected reports an operation that needs a live session.
	ErrNotConnected = errors.New("not connected")
	// ErrClosed reports use of a closed session. It matches ErrNotConnected.
	ErrClosed = fmt.Errorf("%w: session closed", ErrNotConnected)
)

// Texts of locally synthesized messages.
const (
	DeliveryFailureText = "Sorry, there was an error sending your message. Please try again."
	RemoteFailureText   = "Sorry, something went wrong on our side. Please try again."
	CompletionText      = "🎉 Your design consultation is complete! Thank you for chatting with us, a designer will be in touch soon."
)
