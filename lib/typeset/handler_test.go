// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package typeset

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/typbot/lib/clock"
	"github.com/bureau-foundation/typbot/lib/ref"
	"github.com/bureau-foundation/typbot/lib/syncengine"
	"github.com/bureau-foundation/typbot/lib/testutil"
	"github.com/bureau-foundation/typbot/messaging"
)

type sentMessage struct {
	roomID  ref.RoomID
	content messaging.MessageContent
}

type upload struct {
	contentType string
	filename    string
	data        []byte
}

// recordingSender captures replies instead of sending them.
type recordingSender struct {
	mu        sync.Mutex
	sent      []sentMessage
	uploads   []upload
	uploadErr error
}

func (s *recordingSender) SendMessage(_ context.Context, roomID ref.RoomID, content messaging.MessageContent) (ref.EventID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{roomID: roomID, content: content})
	return ref.MustParseEventID("$reply"), nil
}

func (s *recordingSender) UploadMedia(_ context.Context, contentType, filename string, body io.Reader) (string, error) {
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, upload{contentType: contentType, filename: filename, data: data})
	return "mxc://local/render", nil
}

func newHandler(t *testing.T, sender Sender, compiler *Compiler) *Handler {
	t.Helper()
	handler, err := New(Config{
		Session:  sender,
		Rooms:    joinedRooms(),
		Compiler: compiler,
		Clock:    clock.Fake(now),
		Logger:   testutil.Logger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return handler
}

// unusedCompiler fails every run, so a test that reaches it errors.
func unusedCompiler() *Compiler {
	return NewCompiler(CompilerConfig{Binary: "/nonexistent/typst", Logger: testutil.Logger()})
}

// onlyReply returns the single sent message and checks its relation
// to the trigger.
func onlyReply(t *testing.T, sender *recordingSender) messaging.MessageContent {
	t.Helper()
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	sent := sender.sent[0]
	if sent.roomID != joinedRoom {
		t.Errorf("reply sent to %s, want %s", sent.roomID, joinedRoom)
	}
	content := sent.content
	if content.RelatesTo == nil || content.RelatesTo.InReplyTo == nil ||
		content.RelatesTo.InReplyTo.EventID != ref.MustParseEventID("$trigger") {
		t.Errorf("reply does not point at the trigger: %+v", content.RelatesTo)
	}
	if content.Mentions == nil || len(content.Mentions.UserIDs) != 1 || content.Mentions.UserIDs[0] != aliceID {
		t.Errorf("reply does not mention the sender: %+v", content.Mentions)
	}
	return content
}

func TestHandleIgnoresNonCommands(t *testing.T) {
	tests := []struct {
		name  string
		event syncengine.InboundEvent
	}{
		{"no prefix", textMessage("hello", 0)},
		{"stale", textMessage(",typ $x$", 10*time.Second)},
		{"membership", &syncengine.MembershipChange{RoomID: joinedRoom, Target: aliceID, Membership: "join"}},
		{"other", &syncengine.OtherEvent{RoomID: joinedRoom}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sender := &recordingSender{}
			handler := newHandler(t, sender, unusedCompiler())
			if err := handler.Handle(context.Background(), test.event); err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if len(sender.sent) != 0 || len(sender.uploads) != 0 {
				t.Errorf("non-command produced %d sends and %d uploads", len(sender.sent), len(sender.uploads))
			}
		})
	}
}

func TestHandleEmptySource(t *testing.T) {
	for _, body := range []string{",typ", ",typ   ", ",typ \n\t"} {
		sender := &recordingSender{}
		handler := newHandler(t, sender, unusedCompiler())
		if err := handler.Handle(context.Background(), textMessage(body, 0)); err != nil {
			t.Fatalf("Handle(%q): %v", body, err)
		}
		content := onlyReply(t, sender)
		if content.MsgType != messaging.MsgTypeText || content.Body != EmptySourceMessage {
			t.Errorf("Handle(%q) replied %+v", body, content)
		}
	}
}

func TestHandleRendersImage(t *testing.T) {
	sender := &recordingSender{}
	handler := newHandler(t, sender, pngCompiler(t, 640, 180))

	if err := handler.Handle(context.Background(), textMessage(",typ $sum_(i=0)^n i$", 0)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(sender.uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(sender.uploads))
	}
	uploaded := sender.uploads[0]
	if uploaded.contentType != "image/png" || uploaded.filename != ImageFilename {
		t.Errorf("upload = %s %s", uploaded.contentType, uploaded.filename)
	}

	content := onlyReply(t, sender)
	if content.MsgType != messaging.MsgTypeImage || content.URL != "mxc://local/render" {
		t.Errorf("unexpected image message: %+v", content)
	}
	if content.Info == nil || content.Info.Width != 640 || content.Info.Height != 180 {
		t.Fatalf("image info = %+v, want 640x180", content.Info)
	}
	if content.Info.MimeType != "image/png" || content.Info.Size != len(uploaded.data) {
		t.Errorf("image info = %+v, uploaded %d bytes", content.Info, len(uploaded.data))
	}
}

func TestHandleCompileError(t *testing.T) {
	sender := &recordingSender{}
	compiler := shellCompiler("cat >/dev/null; printf 'error: unclosed delimiter <$>' >&2; exit 1", 5*time.Second)
	handler := newHandler(t, sender, compiler)

	if err := handler.Handle(context.Background(), textMessage(",typ $x", 0)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	content := onlyReply(t, sender)
	if content.Body != "error: unclosed delimiter <$>" {
		t.Errorf("body = %q", content.Body)
	}
	if content.Format != messaging.FormatHTML {
		t.Errorf("format = %q", content.Format)
	}
	want := `<pre><code class="language-typst">error: unclosed delimiter &lt;$&gt;</code></pre>`
	if content.FormattedBody != want {
		t.Errorf("formatted body = %q, want %q", content.FormattedBody, want)
	}
	if len(sender.uploads) != 0 {
		t.Error("compile error uploaded media")
	}
}

func TestHandleTimeout(t *testing.T) {
	sender := &recordingSender{}
	compiler := shellCompiler("cat >/dev/null; sleep 30", 200*time.Millisecond)
	handler := newHandler(t, sender, compiler)

	if err := handler.Handle(context.Background(), textMessage(",typ #loop", 0)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	content := onlyReply(t, sender)
	if content.Body != TimeoutMessage || content.Format != "" {
		t.Errorf("timeout reply = %+v", content)
	}
}

func TestHandleSourceGetsPreamble(t *testing.T) {
	sender := &recordingSender{}
	// Echo the source back as a "diagnostic" so the test can see it.
	compiler := shellCompiler("cat >&2; exit 1", 5*time.Second)
	handler := newHandler(t, sender, compiler)

	if err := handler.Handle(context.Background(), textMessage(",typ hello", 0)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	body := onlyReply(t, sender).Body
	if body != DefaultPreamble+"\n hello" {
		t.Errorf("compiler saw %q", body)
	}
	if !strings.Contains(body, "catppuccin") {
		t.Error("preamble missing")
	}
}

func TestHandleKeepsThread(t *testing.T) {
	sender := &recordingSender{}
	handler := newHandler(t, sender, unusedCompiler())

	message := textMessage(",typ", 0)
	message.ThreadRoot = ref.MustParseEventID("$root")
	if err := handler.Handle(context.Background(), message); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	relation := onlyReply(t, sender).RelatesTo
	if relation.RelType != messaging.RelationThread || relation.EventID != message.ThreadRoot {
		t.Errorf("reply left the thread: %+v", relation)
	}
}

func TestHandleUploadFailure(t *testing.T) {
	uploadErr := errors.New("media repository unavailable")
	sender := &recordingSender{uploadErr: uploadErr}
	handler := newHandler(t, sender, pngCompiler(t, 8, 8))

	err := handler.Handle(context.Background(), textMessage(",typ $x$", 0))
	if !errors.Is(err, uploadErr) {
		t.Fatalf("Handle error = %v, want upload error", err)
	}
	if len(sender.sent) != 0 {
		t.Error("reply sent despite failed upload")
	}
}

func TestHandleInvalidImage(t *testing.T) {
	sender := &recordingSender{}
	compiler := shellCompiler("cat >/dev/null; printf 'garbage'", 5*time.Second)
	handler := newHandler(t, sender, compiler)

	if err := handler.Handle(context.Background(), textMessage(",typ $x$", 0)); err == nil {
		t.Fatal("expected error for undecodable image")
	}
	if len(sender.sent) != 0 {
		t.Error("reply sent for undecodable image")
	}
}

func TestHandleSpawnFailure(t *testing.T) {
	sender := &recordingSender{}
	handler := newHandler(t, sender, unusedCompiler())

	if err := handler.Handle(context.Background(), textMessage(",typ $x$", 0)); err == nil {
		t.Fatal("expected error when the compiler cannot start")
	}
	if len(sender.sent) != 0 {
		t.Error("reply sent for failed spawn")
	}
}

func TestResponderRejectsUnknownReply(t *testing.T) {
	responder := Responder{Session: &recordingSender{}}
	var reply Reply
	if _, err := responder.Send(context.Background(), joinedRoom, messaging.ReplyTarget{}, reply); err == nil {
		t.Fatal("expected error for nil reply")
	}
}

func TestNewValidation(t *testing.T) {
	rooms := joinedRooms()
	compiler := unusedCompiler()
	sender := &recordingSender{}
	for name, config := range map[string]Config{
		"no session":  {Rooms: rooms, Compiler: compiler},
		"no rooms":    {Session: sender, Compiler: compiler},
		"no compiler": {Session: sender, Rooms: rooms},
	} {
		if _, err := New(config); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
