package ingest

import (
	"encoding/json"
	"strings"

	"mailhook/internal/ingest/attachments"
	"mailhook/internal/ingest/parser"
)

// Payload is the JSON document delivered to the webhook (or handed to the
// domain's function first). Attachment bodies stay in object storage; only
// references travel here.
type Payload struct {
	EmailID       string            `json:"email_id"`
	Sender        string            `json:"sender"`
	Recipient     string            `json:"recipient"`
	Subject       string            `json:"subject"`
	Date          string            `json:"date"`
	MessageID     string            `json:"message_id"`
	CC            string            `json:"cc,omitempty"`
	BCC           string            `json:"bcc,omitempty"`
	ReplyTo       string            `json:"reply_to,omitempty"`
	References    string            `json:"references,omitempty"`
	InReplyTo     string            `json:"in_reply_to,omitempty"`
	Importance    string            `json:"importance,omitempty"`
	CustomHeaders map[string]string `json:"custom_headers,omitempty"`
	Body          string            `json:"body"`
	HTMLBody      string            `json:"html_body,omitempty"`
	Attachments   []attachments.Ref `json:"attachments"`
}

// BuildPayload assembles the delivery document. Inline resources are not
// listed as attachments; instead cid: references in the HTML body are
// rewritten to their uploaded URLs so the HTML renders standalone.
func BuildPayload(emailID string, msg *parser.Message, refs []attachments.Ref) ([]byte, error) {
	regular := make([]attachments.Ref, 0, len(refs))
	html := msg.HTMLBody
	for _, ref := range refs {
		if ref.Inline {
			if ref.ContentID != "" {
				html = strings.ReplaceAll(html, "cid:"+ref.ContentID, ref.PublicURL)
			}
			continue
		}
		regular = append(regular, ref)
	}

	return json.Marshal(Payload{
		EmailID:       emailID,
		Sender:        msg.Sender,
		Recipient:     msg.Recipient,
		Subject:       msg.Subject,
		Date:          msg.Date,
		MessageID:     msg.MessageID,
		CC:            msg.CC,
		BCC:           msg.BCC,
		ReplyTo:       msg.ReplyTo,
		References:    msg.References,
		InReplyTo:     msg.InReplyTo,
		Importance:    msg.Importance,
		CustomHeaders: msg.CustomHeaders,
		Body:          msg.TextBody,
		HTMLBody:      html,
		Attachments:   regular,
	})
}
