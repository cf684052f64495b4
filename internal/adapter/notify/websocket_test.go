package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/logger"
	"github.com/tejashwikalptaru/tunecache/internal/testutil"
)

type fakeCommands struct {
	mu   sync.Mutex
	got  []domain.CommandKind
	fail error
}

func (f *fakeCommands) Send(_ context.Context, cmd domain.Command) (domain.CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, cmd.Kind())
	if f.fail != nil {
		return domain.CommandResult{}, f.fail
	}
	return domain.CommandResult{Canceled: true, Removed: 2}, nil
}

func (f *fakeCommands) kinds() []domain.CommandKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CommandKind(nil), f.got...)
}

func startHub(t *testing.T, sender *fakeCommands) (*Hub, string, func()) {
	t.Helper()
	hub := NewHub(logger.NewTestLogger(t), sender, nil)
	srv := httptest.NewServer(hub)
	stop := func() {
		hub.Close()
		srv.Close()
	}
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http"), stop
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m Message
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestHub_PushesSnapshots(t *testing.T) {
	defer testutil.VerifyNoLeaks(t, testutil.IgnoreHTTPGoroutines()...)

	hub, url, stop := startHub(t, &fakeCommands{})
	defer stop()
	hub.Render(domain.CacheSnapshot{Status: domain.StatusIdle, QueueLen: 1})

	conn := dial(t, url)
	defer conn.Close()

	m := readMessage(t, conn)
	assert.Equal(t, MessageStatus, m.Type)
	require.NotNil(t, m.Snapshot)
	assert.Equal(t, 1, m.Snapshot.QueueLen, "primed with the latest snapshot")

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	hub.Render(domain.CacheSnapshot{
		Status:   domain.StatusDownloading,
		Job:      domain.CacheJob{ID: "a"},
		Progress: domain.DownloadProgress{BytesTransferred: 5, TotalBytes: 10},
	})

	m = readMessage(t, conn)
	require.NotNil(t, m.Snapshot)
	assert.Equal(t, domain.StatusDownloading, m.Snapshot.Status)
	assert.Equal(t, int64(5), m.Snapshot.Progress.BytesTransferred)
}

func TestHub_AcceptsCancelCommands(t *testing.T) {
	defer testutil.VerifyNoLeaks(t, testutil.IgnoreHTTPGoroutines()...)

	sender := &fakeCommands{}
	_, url, stop := startHub(t, sender)
	defer stop()
	conn := dial(t, url)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"command": "cancel_all"}))
	m := readMessage(t, conn)
	assert.Equal(t, MessageResult, m.Type)
	assert.Equal(t, domain.CommandCancelAll, m.Command)
	require.NotNil(t, m.Result)
	assert.True(t, m.Result.Canceled)
	assert.Equal(t, 2, m.Result.Removed)

	require.NoError(t, conn.WriteJSON(map[string]string{"command": "reboot"}))
	m = readMessage(t, conn)
	assert.Equal(t, MessageError, m.Type)
	assert.NotEmpty(t, m.Error)

	assert.Equal(t, []domain.CommandKind{domain.CommandCancelAll}, sender.kinds())
}

func TestHub_CommandErrorIsReported(t *testing.T) {
	defer testutil.VerifyNoLeaks(t, testutil.IgnoreHTTPGoroutines()...)

	_, url, stop := startHub(t, &fakeCommands{fail: domain.ErrServiceClosed})
	defer stop()
	conn := dial(t, url)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"command": "cancel_current"}))
	m := readMessage(t, conn)
	assert.Equal(t, MessageError, m.Type)
	assert.Equal(t, domain.CommandCancelCurrent, m.Command)
	assert.Contains(t, m.Error, domain.ErrServiceClosed.Error())
}

func TestHub_ClientDisconnect(t *testing.T) {
	defer testutil.VerifyNoLeaks(t, testutil.IgnoreHTTPGoroutines()...)

	hub, url, stop := startHub(t, &fakeCommands{})
	defer stop()
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_CloseRejectsNewClients(t *testing.T) {
	defer testutil.VerifyNoLeaks(t, testutil.IgnoreHTTPGoroutines()...)

	hub, url, stop := startHub(t, &fakeCommands{})
	defer stop()
	conn := dial(t, url)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "server side closed")

	late, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		defer late.Close()
		require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err = late.ReadMessage()
	}
	assert.Error(t, err)
}

func TestOriginChecker(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	open := originChecker(nil)
	assert.True(t, open(req("http://evil.example")))

	wildcard := originChecker([]string{"*"})
	assert.True(t, wildcard(req("http://evil.example")))

	strict := originChecker([]string{"http://localhost:3000"})
	assert.True(t, strict(req("http://localhost:3000")))
	assert.True(t, strict(req("")))
	assert.False(t, strict(req("http://evil.example")))
}
