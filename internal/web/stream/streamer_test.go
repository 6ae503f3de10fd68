package stream

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nonFlushable struct {
	http.ResponseWriter
}

type wrapped struct {
	http.ResponseWriter
}

func (w *wrapped) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func TestNewSSE(t *testing.T) {
	rec := httptest.NewRecorder()
	_, err := NewSSE(rec)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.True(t, rec.Flushed)
}

func TestNewSSE_StreamingNotSupported(t *testing.T) {
	rec := httptest.NewRecorder()
	_, err := NewSSE(&nonFlushable{ResponseWriter: rec})
	require.Error(t, err)
	assert.Equal(t, "streaming not supported", err.Error())
	assert.Empty(t, rec.Header().Get("Content-Type"), "nothing is written")
}

func TestNewSSE_UnwrapsMiddlewareWriters(t *testing.T) {
	rec := httptest.NewRecorder()
	_, err := NewSSE(&wrapped{ResponseWriter: rec})
	require.NoError(t, err)
	assert.True(t, rec.Flushed)
}

func TestWriteEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	s, err := NewSSE(rec)
	require.NoError(t, err)

	require.NoError(t, s.WriteEvent(&Event{ID: "7", Event: "snapshot", Retry: 3000, Data: "line one\nline two"}))
	assert.Equal(t, "id: 7\nevent: snapshot\nretry: 3000\ndata: line one\ndata: line two\n\n", rec.Body.String())
}

func TestWriteEvent_Minimal(t *testing.T) {
	rec := httptest.NewRecorder()
	s, err := NewSSE(rec)
	require.NoError(t, err)

	require.NoError(t, s.WriteEvent(&Event{Data: "hello"}))
	assert.Equal(t, "data: hello\n\n", rec.Body.String())
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	s, err := NewSSE(rec)
	require.NoError(t, err)

	require.NoError(t, s.WriteJSON("2", "snapshot", map[string]int{"version": 2}))
	assert.Equal(t, "id: 2\nevent: snapshot\ndata: {\"version\":2}\n\n", rec.Body.String())

	assert.Error(t, s.WriteJSON("3", "snapshot", make(chan int)))
}

func TestComment(t *testing.T) {
	rec := httptest.NewRecorder()
	s, err := NewSSE(rec)
	require.NoError(t, err)

	require.NoError(t, s.Comment("ping"))
	assert.Equal(t, ": ping\n\n", rec.Body.String())
}
