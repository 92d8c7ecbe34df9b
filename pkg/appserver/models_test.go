package appserver

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appserver-client/internal/domain"
)

func TestThreadItemKeepsUnknownFields(t *testing.T) {
	in := `{"type":"agentMessage","id":"item-1","text":"hi","meta":{"tokens":3}}`

	var item ThreadItem
	require.NoError(t, json.Unmarshal([]byte(in), &item))
	assert.Equal(t, "agentMessage", item.Type)
	assert.Equal(t, "item-1", item.ID)
	require.Len(t, item.Extra, 2)
	assert.Equal(t, `"hi"`, item.Extra["text"].String())

	out, err := json.Marshal(item)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestThreadItemKnownFieldsWin(t *testing.T) {
	item := ThreadItem{
		Type:  "reasoning",
		ID:    "item-2",
		Extra: map[string]JSONValue{"id": domain.String("stale"), "summary": domain.String("s")},
	}
	out, err := json.Marshal(item)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"reasoning","id":"item-2","summary":"s"}`, string(out))
}

func TestInitializeParamsOmitsEmptyCapabilities(t *testing.T) {
	out, err := json.Marshal(InitializeParams{ClientInfo: ClientInfo{Name: "n", Version: "1"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"clientInfo":{"name":"n","version":"1"}}`, string(out))
}

func TestDecodeParams(t *testing.T) {
	params := domain.Object(map[string]domain.JSONValue{
		"threadId": domain.String("t-1"),
		"command":  domain.Array(domain.String("ls")),
	})
	type approval struct {
		ThreadID string   `json:"threadId"`
		Command  []string `json:"command"`
	}

	req := InboundMessage{Kind: InboundRequest, Request: &PeerRequest{
		ID:     domain.IntID(1),
		Method: domain.MethodCommandExecutionRequestApproval,
		Params: &params,
	}}
	got, err := DecodeParams[approval](req)
	require.NoError(t, err)
	assert.Equal(t, approval{ThreadID: "t-1", Command: []string{"ls"}}, got)

	note := InboundMessage{Kind: InboundNotification, Notification: &Notification{Method: "turn/started"}}
	empty, err := DecodeParams[approval](note)
	require.NoError(t, err)
	assert.Equal(t, approval{}, empty)

	_, err = DecodeParams[approval](InboundMessage{Kind: InboundDiagnostic, Diagnostic: "x"})
	assert.Error(t, err)
}

func TestEncodeParams(t *testing.T) {
	p, err := encodeParams(nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	v := domain.String("raw")
	p, err = encodeParams(&v)
	require.NoError(t, err)
	assert.Same(t, &v, p)

	p, err = encodeParams(map[string]int{"limit": 2})
	require.NoError(t, err)
	assert.Equal(t, `{"limit":2}`, p.String())

	_, err = encodeParams(func() {})
	assert.ErrorIs(t, err, ErrEncodeFailure)
}
