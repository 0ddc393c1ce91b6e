package session

import (
	"testing"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

func TestClassifyClose(t *testing.T) {
	tests := []struct {
		name       string
		evt        interface{}
		wantClass  CloseClass
		wantReason string
		wantOK     bool
	}{
		{"logged out", &events.LoggedOut{}, CloseLoggedOut, "logged_out", true},
		{"temporary ban", &events.TemporaryBan{}, CloseTerminal, "temporary_ban", true},
		{"client outdated", &events.ClientOutdated{}, CloseTerminal, "client_outdated", true},
		{"stream replaced", &events.StreamReplaced{}, CloseTerminal, "stream_replaced", true},
		{"stream error", &events.StreamError{Code: "515"}, CloseRecoverable, "stream_error:515", true},
		{"disconnected", &events.Disconnected{}, CloseRecoverable, "disconnected", true},
		{"connect failure", &events.ConnectFailure{}, CloseRecoverable, "connect_failure", true},
		{"unrelated event", &events.Connected{}, 0, "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			class, reason, ok := ClassifyClose(tc.evt)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if class != tc.wantClass {
				t.Errorf("class = %d, want %d", class, tc.wantClass)
			}
			if reason != tc.wantReason {
				t.Errorf("reason = %q, want %q", reason, tc.wantReason)
			}
		})
	}
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil message", nil, ""},
		{"conversation", &waE2E.Message{Conversation: proto.String("hello")}, "hello"},
		{
			"extended text",
			&waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("linked")}},
			"linked",
		},
		{
			"image caption",
			&waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("look")}},
			"look",
		},
		{"empty", &waE2E.Message{}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractText(tc.msg); got != tc.want {
				t.Errorf("ExtractText = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClassifyMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil", nil, "text"},
		{"plain text", &waE2E.Message{Conversation: proto.String("hi")}, "text"},
		{"image", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}, "image"},
		{"video", &waE2E.Message{VideoMessage: &waE2E.VideoMessage{}}, "video"},
		{"audio", &waE2E.Message{AudioMessage: &waE2E.AudioMessage{}}, "audio"},
		{"document", &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{}}, "document"},
		{"sticker", &waE2E.Message{StickerMessage: &waE2E.StickerMessage{}}, "sticker"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyMessage(tc.msg); got != tc.want {
				t.Errorf("ClassifyMessage = %q, want %q", got, tc.want)
			}
		})
	}
}
