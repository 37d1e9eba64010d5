package publish

import (
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/RyanBlaney/sonido-vocal/logging"
	"github.com/RyanBlaney/sonido-vocal/session"
)

type fakeSource struct {
	mu     sync.Mutex
	ch     chan session.State
	closed bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan session.State, 1)}
}

func (f *fakeSource) Subscribe() (<-chan session.State, func()) {
	return f.ch, func() {}
}

func (f *fakeSource) send(s session.State) { f.ch <- s }

func (f *fakeSource) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		close(f.ch)
		f.closed = true
	}
}

type fakeControls struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeControls) record(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
}

func (f *fakeControls) Stop() error   { f.record("stop"); return nil }
func (f *fakeControls) Cancel() error { f.record("cancel"); return nil }
func (f *fakeControls) Done() error {
	f.record("done")
	return session.ErrWrongPhase
}
func (f *fakeControls) SetGain(track int, gain float64) error {
	f.record("gain")
	if gain < 0 {
		return errors.New("negative gain")
	}
	return nil
}
func (f *fakeControls) SetApplyAlignment(on bool) error { f.record("align"); return nil }

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return msg
}

func TestHub_StreamsStates(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	srv := httptest.NewServer(NewHub(src, WithLogger(&logging.NoOpLogger{})))
	defer srv.Close()

	conn := dial(t, srv)

	src.send(session.State{Phase: session.PhaseRecording, TakeID: "take-1", RecordPlayheadSec: 1.25})
	msg := readMessage(t, conn)
	if msg.Type != "state" || msg.State == nil {
		t.Fatalf("message = %+v", msg)
	}
	if msg.State.Phase != session.PhaseRecording || msg.State.TakeID != "take-1" || msg.State.RecordPlayheadSec != 1.25 {
		t.Errorf("state = %+v", msg.State)
	}

	src.send(session.State{Phase: session.PhaseIdle, Err: "processing failed"})
	if msg := readMessage(t, conn); msg.State.Phase != session.PhaseIdle || msg.State.Err != "processing failed" {
		t.Errorf("second state = %+v", msg.State)
	}

	src.close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read after source closed = %v, want going away", err)
	}
}

func TestHub_Commands(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	controls := &fakeControls{}
	srv := httptest.NewServer(NewHub(src, WithLogger(&logging.NoOpLogger{}), WithControls(controls)))
	defer srv.Close()
	defer src.close()

	conn := dial(t, srv)

	tests := []struct {
		cmd     Command
		wantOK  bool
		wantErr string
	}{
		{Command{Action: "stop"}, true, ""},
		{Command{Action: "gain", Track: 1, Gain: 0.5}, true, ""},
		{Command{Action: "gain", Track: 1, Gain: -1}, false, "negative gain"},
		{Command{Action: "done"}, false, "not allowed"},
		{Command{Action: "rewind"}, false, "unknown action"},
	}
	for _, tc := range tests {
		if err := conn.WriteJSON(tc.cmd); err != nil {
			t.Fatal(err)
		}
		msg := readMessage(t, conn)
		if msg.Type != "reply" || msg.Reply == nil {
			t.Fatalf("%s: message = %+v", tc.cmd.Action, msg)
		}
		if msg.Reply.OK != tc.wantOK || !strings.Contains(msg.Reply.Error, tc.wantErr) {
			t.Errorf("%s: reply = %+v", tc.cmd.Action, msg.Reply)
		}
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Reply == nil || msg.Reply.OK || !strings.Contains(msg.Reply.Error, "invalid command") {
		t.Errorf("bad json reply = %+v", msg.Reply)
	}

	controls.mu.Lock()
	defer controls.mu.Unlock()
	if got := strings.Join(controls.calls, ","); got != "stop,gain,gain,done" {
		t.Errorf("calls = %s", got)
	}
}

func TestHub_IgnoresCommandsWithoutControls(t *testing.T) {
	t.Parallel()
	src := newFakeSource()
	srv := httptest.NewServer(NewHub(src, WithLogger(&logging.NoOpLogger{})))
	defer srv.Close()
	defer src.close()

	conn := dial(t, srv)
	if err := conn.WriteJSON(Command{Action: "stop"}); err != nil {
		t.Fatal(err)
	}
	src.send(session.State{Phase: session.PhaseReplay})
	if msg := readMessage(t, conn); msg.Type != "state" || msg.State.Phase != session.PhaseReplay {
		t.Errorf("message = %+v, want the state and no reply", msg)
	}
}
