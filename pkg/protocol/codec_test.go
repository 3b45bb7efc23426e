package protocol

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder_ValidRequest(t *testing.T) {
	input := `{"action":"listen","params":{"session_name":"alpha","description":"auth expert"}}` + "\n"

	dec := NewDecoder(strings.NewReader(input))
	req, err := dec.Decode()
	require.NoError(t, err)

	assert.Equal(t, ActionListen, req.Action)
	assert.Equal(t, "alpha", req.Params.SessionName)
	assert.Equal(t, "auth expert", req.Params.Description)

	_, err = dec.Decode()
	assert.Equal(t, io.EOF, err)
}

func TestDecoder_RefocusRequest(t *testing.T) {
	input := `{"action":"refocus","params":{"session_name":"alpha","intent":"narrow down"}}` + "\n"

	dec := NewDecoder(strings.NewReader(input))
	req, err := dec.Decode()
	require.NoError(t, err)

	assert.Equal(t, ActionRefocus, req.Action)
	assert.Equal(t, "alpha", req.Params.SessionName)
	assert.Equal(t, "narrow down", req.Params.Intent)
}

func TestDecoder_SkipsBlankLines(t *testing.T) {
	input := "\n\n" + `{"action":"list_sessions","params":{}}` + "\n"

	dec := NewDecoder(strings.NewReader(input))
	req, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, ActionListSessions, req.Action)
}

func TestDecoder_InvalidJSON(t *testing.T) {
	dec := NewDecoder(strings.NewReader("not json\n"))

	_, err := dec.Decode()
	require.Error(t, err)

	perr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, CodeMalformedRequest, perr.Code)
	assert.False(t, dec.Fatal())
}

func TestDecoder_RecoversAfterBadFrame(t *testing.T) {
	input := "garbage\n" + `{"action":"list_sessions","params":{}}` + "\n"

	dec := NewDecoder(strings.NewReader(input))

	_, err := dec.Decode()
	require.Error(t, err)

	req, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, ActionListSessions, req.Action)
}

func TestDecoder_OversizedFrame(t *testing.T) {
	line := `{"action":"send","params":{"message":"` + strings.Repeat("x", MaxFrameBytes) + `"}}` + "\n"

	dec := NewDecoder(strings.NewReader(line))
	_, err := dec.Decode()
	require.Error(t, err)

	perr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, CodeMalformedRequest, perr.Code)
	assert.True(t, dec.Fatal())
}

func TestValidate_RequiredFields(t *testing.T) {
	tests := []struct {
		name      string
		req       Request
		shouldErr bool
	}{
		{"listen ok", Request{Action: ActionListen, Params: Params{SessionName: "a", Description: "d"}}, false},
		{"listen missing description", Request{Action: ActionListen, Params: Params{SessionName: "a"}}, true},
		{"connect ok", Request{Action: ActionConnect, Params: Params{TargetSession: "a", Intent: "i", MyName: "bob"}}, false},
		{"connect missing intent", Request{Action: ActionConnect, Params: Params{TargetSession: "a", MyName: "bob"}}, true},
		{"send ok", Request{Action: ActionSend, Params: Params{TargetSession: "a", Message: "m", MyName: "bob"}}, false},
		{"wait_response ok", Request{Action: ActionWaitResponse, Params: Params{MyName: "bob"}}, false},
		{"wait_response missing name", Request{Action: ActionWaitResponse}, true},
		{"respond ok", Request{Action: ActionRespond, Params: Params{SessionName: "a", Message: "m"}}, false},
		{"refocus by session", Request{Action: ActionRefocus, Params: Params{SessionName: "a", Intent: "n"}}, false},
		{"refocus by caller", Request{Action: ActionRefocus, Params: Params{MyName: "bob", Intent: "n"}}, false},
		{"refocus missing key", Request{Action: ActionRefocus, Params: Params{Intent: "n"}}, true},
		{"refocus missing intent", Request{Action: ActionRefocus, Params: Params{SessionName: "a"}}, true},
		{"end ok", Request{Action: ActionEndSession, Params: Params{SessionName: "a"}}, false},
		{"list ok", Request{Action: ActionListSessions}, false},
		{"unknown action", Request{Action: "teleport"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.shouldErr {
				require.Error(t, err)
				perr, ok := err.(*Error)
				require.True(t, ok)
				assert.Equal(t, CodeMalformedRequest, perr.Code)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEncoder_FrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	require.NoError(t, enc.Encode(SendAck{Sent: true, To: "alpha"}))
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))

	var ack SendAck
	require.NoError(t, json.Unmarshal(buf.Bytes(), &ack))
	assert.True(t, ack.Sent)
	assert.Equal(t, "alpha", ack.To)
}

func TestEncoder_ErrorFrame(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	require.NoError(t, enc.EncodeError(&Error{Code: CodeNotFound, Message: "session 'x' not found"}))

	dec := NewDecoder(&buf)
	raw, err := dec.DecodeRaw()
	require.NoError(t, err)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNotFound, resp.Error.Code)
}
