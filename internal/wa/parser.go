package wa

import (
	"strings"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"
)

// ParsedMessage is a normalized inbound message ready for ingestion. The sync
// engine resolves ChatJID to a conversation before persisting.
type ParsedMessage struct {
	ChatJID     string
	MsgID       string
	SenderJID   string
	SenderName  string
	Body        string
	MessageType string
	FromMe      bool
	Timestamp   int64

	MediaMime     string
	MediaFilename string
	MediaDuration int
	MediaSize     int64

	Latitude  float64
	Longitude float64
}

// NormalizeJID strips device and agent suffixes from the user part of a JID
// string. History sync and live messages carry different suffixes for the
// same contact ("5511999:0@s.whatsapp.net" vs "5511999@s.whatsapp.net");
// without normalization each form gets its own conversation row.
func NormalizeJID(jid string) string {
	at := strings.IndexByte(jid, '@')
	if at < 0 {
		return jid
	}
	user := jid[:at]
	if colon := strings.IndexByte(user, ':'); colon >= 0 {
		user = user[:colon]
	}
	return user + jid[at:]
}

// ParseLiveMessage normalizes a live whatsmeow message event.
func ParseLiveMessage(evt *events.Message) *ParsedMessage {
	p := &ParsedMessage{
		ChatJID:     evt.Info.Chat.ToNonAD().String(),
		MsgID:       evt.Info.ID,
		SenderJID:   evt.Info.Sender.ToNonAD().String(),
		SenderName:  evt.Info.PushName,
		Body:        extractTextBody(evt.Message),
		MessageType: detectMessageType(evt.Message),
		FromMe:      evt.Info.IsFromMe,
		Timestamp:   evt.Info.Timestamp.UnixMilli(),
	}
	extractMedia(evt.Message, p)
	return p
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	if img := msg.GetImageMessage(); img != nil {
		return img.GetCaption()
	}
	if vid := msg.GetVideoMessage(); vid != nil {
		return vid.GetCaption()
	}
	if doc := msg.GetDocumentMessage(); doc != nil {
		return doc.GetCaption()
	}
	return ""
}

func detectMessageType(msg *waE2E.Message) string {
	if msg == nil {
		return "unknown"
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return "text"
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		if msg.GetAudioMessage().GetPTT() {
			return "voice"
		}
		return "audio"
	case msg.GetDocumentMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	case msg.GetContactMessage() != nil:
		return "contact"
	case msg.GetLocationMessage() != nil:
		return "location"
	default:
		return "unknown"
	}
}

// extractMedia fills attachment and location metadata from whichever media
// payload the message carries.
func extractMedia(msg *waE2E.Message, p *ParsedMessage) {
	if msg == nil {
		return
	}
	switch {
	case msg.GetImageMessage() != nil:
		m := msg.GetImageMessage()
		p.MediaMime = m.GetMimetype()
		p.MediaSize = int64(m.GetFileLength())
	case msg.GetVideoMessage() != nil:
		m := msg.GetVideoMessage()
		p.MediaMime = m.GetMimetype()
		p.MediaSize = int64(m.GetFileLength())
		p.MediaDuration = int(m.GetSeconds())
	case msg.GetAudioMessage() != nil:
		m := msg.GetAudioMessage()
		p.MediaMime = m.GetMimetype()
		p.MediaSize = int64(m.GetFileLength())
		p.MediaDuration = int(m.GetSeconds())
	case msg.GetDocumentMessage() != nil:
		m := msg.GetDocumentMessage()
		p.MediaMime = m.GetMimetype()
		p.MediaFilename = m.GetFileName()
		p.MediaSize = int64(m.GetFileLength())
	case msg.GetLocationMessage() != nil:
		m := msg.GetLocationMessage()
		p.Latitude = m.GetDegreesLatitude()
		p.Longitude = m.GetDegreesLongitude()
	}
}
