package outbox

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/wacrm/wacrm/internal/wa"
)

// maxMediaBytes caps attachment downloads. WhatsApp rejects larger uploads
// anyway.
const maxMediaBytes = 64 << 20

// AdapterSender adapts *wa.Adapter to the MessageSender interface. Media
// entries reference uploaded object URLs; the bytes are fetched here right
// before delivery so the outbox rows stay small.
type AdapterSender struct {
	Adapter *wa.Adapter
	Client  *http.Client
}

// NewAdapterSender wraps an adapter with a download client.
func NewAdapterSender(a *wa.Adapter) *AdapterSender {
	return &AdapterSender{
		Adapter: a,
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// SendText forwards to the adapter.
func (s *AdapterSender) SendText(ctx context.Context, jid string, text string) (string, error) {
	return s.Adapter.SendText(ctx, jid, text)
}

// SendMediaURL downloads the object and sends it as the given media kind.
func (s *AdapterSender) SendMediaURL(ctx context.Context, jid string, kind wa.MediaKind, mediaURL, caption string, seconds int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return "", fmt.Errorf("build media request: %w", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch media: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch media: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		return "", fmt.Errorf("read media: %w", err)
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = defaultMime(kind)
	}
	filename := path.Base(req.URL.Path)

	return s.Adapter.SendMedia(ctx, jid, kind, data, mime, filename, caption, seconds)
}

func defaultMime(kind wa.MediaKind) string {
	switch kind {
	case wa.MediaImage:
		return "image/jpeg"
	case wa.MediaVideo:
		return "video/mp4"
	case wa.MediaVoice:
		return "audio/ogg; codecs=opus"
	default:
		return "application/octet-stream"
	}
}
