package twilio

import (
	"net/url"
	"strconv"
	"strings"
)

// IncomingMessage is one parsed inbound WhatsApp webhook payload.
type IncomingMessage struct {
	MessageSID       string
	From             string
	To               string
	Body             string
	NumMedia         int
	MediaURL         string
	MediaContentType string
	ProfileName      string
}

// IsVoice reports whether the message carries an audio attachment.
func (m IncomingMessage) IsVoice() bool {
	return strings.HasPrefix(m.MediaContentType, "audio/")
}

// IsText reports whether the message is text only.
func (m IncomingMessage) IsText() bool {
	return m.NumMedia == 0 && m.Body != ""
}

// ParseIncoming maps Twilio's webhook form fields onto an
// IncomingMessage. Only the first media attachment is considered.
func ParseIncoming(form url.Values) IncomingMessage {
	numMedia, _ := strconv.Atoi(form.Get("NumMedia"))

	msg := IncomingMessage{
		MessageSID:  form.Get("MessageSid"),
		From:        form.Get("From"),
		To:          form.Get("To"),
		Body:        form.Get("Body"),
		NumMedia:    numMedia,
		ProfileName: form.Get("ProfileName"),
	}
	if numMedia > 0 {
		msg.MediaURL = form.Get("MediaUrl0")
		msg.MediaContentType = form.Get("MediaContentType0")
	}
	return msg
}
