package transport

import "github.com/wedraw/support/internal/dispatch"

// Push fallback copy per event type. Push channels only see the headline;
// the full payload waits in the session history for the next connect.
func pushTitle(event string) string {
	switch event {
	case dispatch.EventMessage:
		return "New support message"
	case dispatch.EventSessionAssigned:
		return "Support agent assigned"
	case dispatch.EventSessionTransferred:
		return "Support session transferred"
	case dispatch.EventSessionClosed:
		return "Support session closed"
	default:
		return "WeDraw support update"
	}
}

func pushContent(event string) string {
	switch event {
	case dispatch.EventMessage:
		return "You have a new message in your support session."
	case dispatch.EventSessionAssigned:
		return "An agent has joined your support session."
	case dispatch.EventSessionTransferred:
		return "Your support session was handed to another agent."
	case dispatch.EventSessionClosed:
		return "Your support session has been closed."
	default:
		return "There is an update in your support session."
	}
}
