package devserver_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ajj/internal/devserver"
	"ajj/internal/engine"
)

type fakeVFS struct{ ts time.Time }

func (f *fakeVFS) Timestamp(path string) (time.Time, error) { return f.ts, nil }

func TestServeWSBroadcastsOnChange(t *testing.T) {
	vfs := &fakeVFS{ts: time.Unix(1000, 0)}
	eng := engine.New()
	s := devserver.New(eng, vfs, []string{"a.html"})
	s.SetPollInterval(10 * time.Millisecond)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.ServeWS)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	vfs.ts = vfs.ts.Add(time.Hour)
	go s.Watch()
	defer s.Stop()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "reload", string(msg))
}

func TestNoBroadcastWithoutChange(t *testing.T) {
	vfs := &fakeVFS{ts: time.Unix(2000, 0)}
	eng := engine.New()
	s := devserver.New(eng, vfs, []string{"a.html"})
	s.SetPollInterval(10 * time.Millisecond)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.ServeWS)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	go s.Watch()
	defer s.Stop()

	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "no timestamp change should mean no broadcast")
}
