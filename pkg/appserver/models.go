package appserver

import (
	"encoding/json"

	"appserver-client/internal/domain"
)

// ClientInfo identifies this client to the peer.
type ClientInfo struct {
	Name    string `json:"name"`
	Title   string `json:"title,omitempty"`
	Version string `json:"version"`
}

// Capabilities are optional client features announced in initialize.
type Capabilities struct {
	ExperimentalAPI           bool     `json:"experimentalApi"`
	OptOutNotificationMethods []string `json:"optOutNotificationMethods,omitempty"`
}

// InitializeParams is the payload of the initialize call.
type InitializeParams struct {
	ClientInfo   ClientInfo    `json:"clientInfo"`
	Capabilities *Capabilities `json:"capabilities,omitempty"`
}

// InitializeResult is the peer's answer to initialize.
type InitializeResult struct {
	UserAgent string `json:"userAgent"`
}

// ThreadItem is one entry of a thread. Keys other than type and id are kept
// in Extra and written back unchanged.
type ThreadItem struct {
	Type  string
	ID    string
	Extra map[string]JSONValue
}

type threadItemKnown struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// MarshalJSON merges Extra with the known fields; known fields win.
func (it ThreadItem) MarshalJSON() ([]byte, error) {
	v, err := domain.MergeObject(threadItemKnown{Type: it.Type, ID: it.ID}, it.Extra)
	if err != nil {
		return nil, err
	}
	return v.MarshalJSON()
}

// UnmarshalJSON reads type and id and keeps every other key in Extra.
func (it *ThreadItem) UnmarshalJSON(data []byte) error {
	var known threadItemKnown
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var raw JSONValue
	if err := raw.UnmarshalJSON(data); err != nil {
		return err
	}
	it.Type = known.Type
	it.ID = known.ID
	it.Extra = domain.SplitObject(raw, "type", "id")
	return nil
}
