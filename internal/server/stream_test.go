package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isamples-modelserver/internal/taxonomy"
)

func dialStream(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, msg string) StreamResponse {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
	var resp StreamResponse
	require.NoError(t, conn.ReadJSON(&resp))
	return resp
}

func TestStream_Predictions(t *testing.T) {
	f := newFixture()
	conn := dialStream(t, f.server)

	resp := roundTrip(t, conn, `{"id": 1, "collection": "opencontext", "source_record": {"foo": "bar"}, "type": "material"}`)
	assert.JSONEq(t, `1`, string(resp.ID))
	assert.Nil(t, resp.Error)
	assert.Equal(t, []taxonomy.PredictionResult{{Value: "material", Confidence: 0.5}}, resp.Results)

	resp = roundTrip(t, conn, `{"id": "b", "collection": "sesar", "source_record": {"description": {}}, "type": "material"}`)
	assert.JSONEq(t, `"b"`, string(resp.ID))
	assert.Equal(t, []taxonomy.PredictionResult{{Value: "Rock", Confidence: 1.0}}, resp.Results)

	resp = roundTrip(t, conn, `{"id": 3, "collection": "smithsonian", "input": ["Marine"], "type": "context"}`)
	require.NotNil(t, resp.Label)
	assert.Equal(t, "sampled feature", *resp.Label)
	assert.Empty(t, resp.Results)
}

func TestStream_Errors(t *testing.T) {
	f := newFixture()
	f.sesar.err = taxonomy.NewSESARSampleTypeError("Record excluded from indexing due to it being a known ignored sampleType")
	conn := dialStream(t, f.server)

	resp := roundTrip(t, conn, `{"id": 1, "collection": "sesar", "source_record": {"description": {}}, "type": "material"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, http.StatusConflict, resp.Error.Status)
	assert.Equal(t, "SESARSampleTypeException", resp.Error.Exception)
	assert.Empty(t, resp.Results)

	resp = roundTrip(t, conn, `{"id": 2, "collection": "opencontext", "source_record": {}, "type": "context"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, http.StatusInternalServerError, resp.Error.Status)
	assert.Equal(t, msgOpenContextType, resp.Error.Message)
	assert.Empty(t, resp.Error.Exception)

	resp = roundTrip(t, conn, `{"id": 3, "collection": "smithsonian", "type": "context"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, msgInputRequired, resp.Error.Message)

	resp = roundTrip(t, conn, `{"id": 4, "collection": "geome", "source_record": {}, "type": "material"}`)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "Unknown collection")

	resp = roundTrip(t, conn, `not json`)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "Unable to parse stream message")

	// the connection survives bad messages
	resp = roundTrip(t, conn, `{"id": 5, "collection": "smithsonian", "input": ["x"], "type": "context"}`)
	assert.Nil(t, resp.Error)
	assert.Equal(t, []string{"SESARSampleTypeException"}, f.recorder.refusedKinds())
}
