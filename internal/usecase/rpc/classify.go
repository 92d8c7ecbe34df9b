package rpc

import (
	"strings"

	"appserver-client/internal/domain"
)

type messageKind int

const (
	messageIgnored messageKind = iota
	messageRequest
	messageNotification
	messageResponse
	messageMalformed
)

func (k messageKind) String() string {
	switch k {
	case messageIgnored:
		return "ignored"
	case messageRequest:
		return "request"
	case messageNotification:
		return "notification"
	case messageResponse:
		return "response"
	default:
		return "malformed"
	}
}

type classified struct {
	kind       messageKind
	envelope   domain.IncomingEnvelope
	diagnostic string
}

// classify decodes one inbound text message and decides where it goes.
// A method with an id is a peer request, a method alone a notification,
// an id alone a response. Anything else is reported as a diagnostic.
func classify(text string) classified {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return classified{kind: messageIgnored}
	}

	env, err := domain.DecodeIncoming([]byte(trimmed))
	if err != nil {
		return classified{kind: messageMalformed, diagnostic: "malformed JSON-RPC message: " + trimmed}
	}

	switch {
	case env.Method != nil && env.ID != nil:
		return classified{kind: messageRequest, envelope: env}
	case env.Method != nil:
		return classified{kind: messageNotification, envelope: env}
	case env.ID != nil:
		return classified{kind: messageResponse, envelope: env}
	default:
		return classified{kind: messageMalformed, diagnostic: "malformed JSON-RPC message missing method/id."}
	}
}

// inbound converts a request or notification into the consumer's form.
func (c classified) inbound() domain.InboundMessage {
	if c.kind == messageRequest {
		return domain.NewRequestMessage(*c.envelope.ID, *c.envelope.Method, c.envelope.Params)
	}
	return domain.NewNotificationMessage(*c.envelope.Method, c.envelope.Params)
}
