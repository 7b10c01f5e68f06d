package bridge

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"

	appbridge "github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/bridge"
	domainErrors "github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/errors"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/testutil"
)

type recordingHandler struct {
	mu   sync.Mutex
	msgs []appbridge.Message
}

func (h *recordingHandler) Handle(ctx context.Context, msg appbridge.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg)
	if !msg.IsCompletion() {
		return domainErrors.ErrUnknownMessage
	}
	return nil
}

func (h *recordingHandler) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.msgs))
	for i, m := range h.msgs {
		out[i] = m.Type
	}
	return out
}

func newDecoder(t *testing.T) *Decoder {
	t.Helper()
	d, err := NewDecoder()
	if err != nil {
		t.Fatalf("NewDecoder() error = %v", err)
	}
	return d
}

func TestDecoder(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    appbridge.Message
		wantErr bool
	}{
		{"sync completed", `{"type":"SYNC_COMPLETED","status":"ok"}`, appbridge.Message{Type: "SYNC_COMPLETED", Status: "ok"}, false},
		{"report with tag", `{"type":"REPORT_SYNC_COMPLETED","tag":"report-sync"}`, appbridge.Message{Type: "REPORT_SYNC_COMPLETED", Tag: "report-sync"}, false},
		{"unknown type decodes", `{"type":"CACHE_UPDATED"}`, appbridge.Message{Type: "CACHE_UPDATED"}, false},
		{"extra fields allowed", `{"type":"SYNC_COMPLETED","count":3}`, appbridge.Message{Type: "SYNC_COMPLETED"}, false},
		{"missing type", `{"status":"ok"}`, appbridge.Message{}, true},
		{"lowercase type", `{"type":"sync_completed"}`, appbridge.Message{}, true},
		{"status not string", `{"type":"SYNC_COMPLETED","status":1}`, appbridge.Message{}, true},
		{"array", `[]`, appbridge.Message{}, true},
		{"not json", `SYNC_COMPLETED`, appbridge.Message{}, true},
	}

	d := newDecoder(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Decode([]byte(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, domainErrors.ErrInvalidPayload) {
					t.Errorf("error = %v, want ErrInvalidPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestInbox_ProcessesBacklogAndNewFiles(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "001.json", `{"type":"SYNC_COMPLETED"}`)
	testutil.WriteFile(t, dir, "002.json", `not json`)
	testutil.WriteFile(t, dir, "notes.txt", `{"type":"SYNC_COMPLETED"}`)

	handler := &recordingHandler{}
	inbox, err := NewInbox(InboxConfig{Dir: dir, DebounceDuration: 10 * time.Millisecond}, newDecoder(t), handler, nil)
	if err != nil {
		t.Fatalf("NewInbox() error = %v", err)
	}
	defer inbox.Close()

	if err := inbox.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := handler.types(); len(got) != 1 || got[0] != "SYNC_COMPLETED" {
		t.Fatalf("backlog handled = %v", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "002.json")); !os.IsNotExist(err) {
		t.Error("invalid file should be removed")
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Error("non-JSON files must be left alone")
	}

	testutil.WriteFile(t, dir, "003.json", `{"type":"REPORT_SYNC_COMPLETED","status":"done"}`)
	testutil.Eventually(t, 2*time.Second, func() bool { return len(handler.types()) == 2 })
	testutil.Eventually(t, time.Second, func() bool {
		_, err := os.Stat(filepath.Join(dir, "003.json"))
		return os.IsNotExist(err)
	})

	processed, rejected := inbox.Stats()
	if processed != 2 || rejected != 1 {
		t.Errorf("Stats() = %d, %d", processed, rejected)
	}
}

func TestInbox_CreatesDirectoryAndCloses(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "inbox")
	inbox, err := NewInbox(InboxConfig{Dir: dir}, newDecoder(t), &recordingHandler{}, nil)
	if err != nil {
		t.Fatalf("NewInbox() error = %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("inbox dir not created: %v", err)
	}
	if err := inbox.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := inbox.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := inbox.Start(); err != nil {
		t.Errorf("Start() after Close error = %v", err)
	}

	if _, err := NewInbox(InboxConfig{}, newDecoder(t), &recordingHandler{}, nil); err == nil {
		t.Error("empty dir should fail")
	}
}

func TestInbox_RefusesUnsafeRootAndSymlinks(t *testing.T) {
	if _, err := NewInbox(InboxConfig{Dir: "/etc"}, newDecoder(t), &recordingHandler{}, nil); err == nil {
		t.Error("system directory should be refused as inbox")
	}

	dir := t.TempDir()
	outside := testutil.WriteFile(t, t.TempDir(), "secret.json", `{"type":"SYNC_COMPLETED"}`)
	link := filepath.Join(dir, "link.json")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	handler := &recordingHandler{}
	inbox, err := NewInbox(InboxConfig{Dir: dir}, newDecoder(t), handler, nil)
	if err != nil {
		t.Fatalf("NewInbox() error = %v", err)
	}
	defer inbox.Close()
	if err := inbox.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := handler.types(); len(got) != 0 {
		t.Errorf("symlinked notice was handled: %v", got)
	}
	if _, err := os.Stat(outside); err != nil {
		t.Errorf("link target touched: %v", err)
	}
	if _, rejected := inbox.Stats(); rejected != 1 {
		t.Errorf("rejected = %d, want 1", rejected)
	}
}

func TestWebSocketHandler(t *testing.T) {
	handler := &recordingHandler{}
	ws := NewWebSocketHandler(newDecoder(t), handler, nil)
	srv := httptest.NewServer(ws)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	frames := []string{
		`{"type":"SYNC_COMPLETED","status":"ok"}`,
		`{"status":"missing type"}`,
		`{"type":"CACHE_UPDATED"}`,
		`{"type":"REPORT_SYNC_COMPLETED"}`,
	}
	for _, f := range frames {
		if err := conn.Write(ctx, websocket.MessageText, []byte(f)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageBinary, []byte(`{"type":"SYNC_COMPLETED"}`)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	testutil.Eventually(t, 2*time.Second, func() bool { return len(handler.types()) == 3 })
	if ws.Frames() != 4 {
		t.Errorf("Frames() = %d, want 4 (binary frames are ignored)", ws.Frames())
	}
	got := handler.types()
	want := []string{"SYNC_COMPLETED", "CACHE_UPDATED", "REPORT_SYNC_COMPLETED"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("handled = %v, want %v", got, want)
	}
	if ws.Connections() != 1 {
		t.Errorf("Connections() = %d, want 1", ws.Connections())
	}

	conn.Close(websocket.StatusNormalClosure, "")
	testutil.Eventually(t, 2*time.Second, func() bool { return ws.Connections() == 0 })
}
