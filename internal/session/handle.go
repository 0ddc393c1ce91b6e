package session

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wstore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"github.com/muzzf16/whatsapp-dashboardv3/internal/delivery"
)

// maxMediaBytes bounds how much is fetched from a media URL.
const maxMediaBytes = 64 << 20

var mediaFetchClient = &http.Client{Timeout: 60 * time.Second}

// Handle is the live connection owned by the registry entry of one session.
type Handle struct {
	SessionID string
	Client    *whatsmeow.Client
	Device    *wstore.Device

	// cacheDB is the per-session credential cache database.
	cacheDB *sql.DB
}

// IsConnected reports whether the underlying socket is open.
func (h *Handle) IsConnected() bool {
	return h.Client != nil && h.Client.IsConnected()
}

// IsLoggedIn reports whether the session has paired credentials.
func (h *Handle) IsLoggedIn() bool {
	return h.Device != nil && h.Device.ID != nil
}

// PhoneNumber returns the phone number of the paired account, empty before
// pairing.
func (h *Handle) PhoneNumber() string {
	if h.Device == nil || h.Device.ID == nil {
		return ""
	}
	return h.Device.ID.User
}

// Close releases the credential cache connection. The whatsmeow client must
// already be disconnected.
func (h *Handle) Close() {
	if h.cacheDB != nil {
		h.cacheDB.Close()
		h.cacheDB = nil
	}
}

// Send delivers an outbound payload through this connection.
func (h *Handle) Send(ctx context.Context, chatID string, out delivery.Outbound) (*delivery.Receipt, error) {
	jid, err := ParseChatJID(chatID)
	if err != nil {
		return nil, err
	}

	var msg *waE2E.Message
	if out.MediaURL != "" {
		msg, err = h.buildMediaMessage(ctx, out)
		if err != nil {
			return nil, err
		}
	} else {
		msg = &waE2E.Message{Conversation: proto.String(out.Content)}
	}

	resp, err := h.Client.SendMessage(ctx, jid, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	return &delivery.Receipt{MessageID: resp.ID, Timestamp: resp.Timestamp}, nil
}

// SendText delivers a plain text message.
func (h *Handle) SendText(ctx context.Context, chatID, text string) (*delivery.Receipt, error) {
	return h.Send(ctx, chatID, delivery.Outbound{Content: text})
}

// buildMediaMessage fetches the payload's media URL, uploads it and builds
// the matching media message with the content as caption.
func (h *Handle) buildMediaMessage(ctx context.Context, out delivery.Outbound) (*waE2E.Message, error) {
	data, mimeType, err := fetchMedia(ctx, out.MediaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch media: %w", err)
	}

	switch out.MediaType {
	case "image":
		up, err := h.Client.Upload(ctx, data, whatsmeow.MediaImage)
		if err != nil {
			return nil, fmt.Errorf("failed to upload image: %w", err)
		}
		img := &waE2E.ImageMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(mimeType),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}
		if out.Content != "" {
			img.Caption = proto.String(out.Content)
		}
		return &waE2E.Message{ImageMessage: img}, nil

	case "video":
		up, err := h.Client.Upload(ctx, data, whatsmeow.MediaVideo)
		if err != nil {
			return nil, fmt.Errorf("failed to upload video: %w", err)
		}
		vid := &waE2E.VideoMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(mimeType),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}
		if out.Content != "" {
			vid.Caption = proto.String(out.Content)
		}
		return &waE2E.Message{VideoMessage: vid}, nil

	case "audio":
		up, err := h.Client.Upload(ctx, data, whatsmeow.MediaAudio)
		if err != nil {
			return nil, fmt.Errorf("failed to upload audio: %w", err)
		}
		aud := &waE2E.AudioMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(mimeType),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}
		return &waE2E.Message{AudioMessage: aud}, nil

	case "document", "":
		up, err := h.Client.Upload(ctx, data, whatsmeow.MediaDocument)
		if err != nil {
			return nil, fmt.Errorf("failed to upload document: %w", err)
		}
		doc := &waE2E.DocumentMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(mimeType),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
			FileName:      proto.String(fileNameFromURL(out.MediaURL)),
		}
		if out.Content != "" {
			doc.Caption = proto.String(out.Content)
		}
		return &waE2E.Message{DocumentMessage: doc}, nil

	default:
		return nil, fmt.Errorf("unsupported media type %q", out.MediaType)
	}
}

func fetchMedia(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := mediaFetchClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		return nil, "", err
	}
	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return data, mimeType, nil
}

func fileNameFromURL(url string) string {
	trimmed := strings.TrimRight(url, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 && idx < len(trimmed)-1 {
		return trimmed[idx+1:]
	}
	return "file"
}

// ParseChatJID parses a chat destination, accepting bare phone numbers as
// user JIDs.
func ParseChatJID(chatID string) (types.JID, error) {
	if chatID == "" {
		return types.JID{}, fmt.Errorf("chat id is required")
	}
	if !strings.ContainsRune(chatID, '@') {
		chatID = chatID + "@" + types.DefaultUserServer
	}
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return types.JID{}, fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}
	return jid, nil
}

var _ delivery.Conn = (*Handle)(nil)
