// Package parser decodes raw RFC 5322 messages into the structured form the
// delivery pipeline works with, including MIME multipart walking and
// attachment extraction.
package parser

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
)

// ErrMalformed marks messages the parser cannot extract a recipient from.
// Such messages are recorded as failed and not retried automatically.
var ErrMalformed = errors.New("malformed message")

// Part is one extracted attachment or inline resource. DecodeError flags
// parts whose transfer encoding could not be decoded; Content then holds the
// raw bytes.
type Part struct {
	Filename    string
	ContentType string
	ContentID   string
	Inline      bool
	DecodeError bool
	Content     []byte
}

// Message is the parsed form of one inbound email.
type Message struct {
	Sender     string
	Recipient  string
	LocalPart  string
	Domain     string
	Subject    string
	Date       string
	MessageID  string
	CC         string
	BCC        string
	ReplyTo    string
	References string
	InReplyTo  string
	Importance string

	// Headers holds every header, canonical key, last value wins on
	// duplicates. CustomHeaders is the X-* subset forwarded verbatim.
	Headers       map[string]string
	CustomHeaders map[string]string

	TextBody string
	HTMLBody string
	RawSize  int

	Attachments []Part
}

// Parse decodes a raw message. The first To address is the primary recipient;
// a message without one is malformed.
func Parse(raw []byte) (*Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	result := &Message{
		Headers:       make(map[string]string),
		CustomHeaders: make(map[string]string),
		RawSize:       len(raw),
	}

	for key, values := range msg.Header {
		if len(values) == 0 {
			continue
		}
		canonical := canonicalKey(key)
		result.Headers[canonical] = values[len(values)-1]
		if strings.HasPrefix(strings.ToLower(canonical), "x-") {
			result.CustomHeaders[canonical] = values[len(values)-1]
		}
	}

	result.Sender = msg.Header.Get("From")
	result.Subject = decodeHeader(msg.Header.Get("Subject"))
	result.Date = msg.Header.Get("Date")
	result.MessageID = msg.Header.Get("Message-Id")
	result.CC = msg.Header.Get("Cc")
	result.BCC = msg.Header.Get("Bcc")
	result.ReplyTo = msg.Header.Get("Reply-To")
	result.References = msg.Header.Get("References")
	result.InReplyTo = msg.Header.Get("In-Reply-To")
	result.Importance = msg.Header.Get("Importance")

	recipient, err := primaryRecipient(msg.Header.Get("To"))
	if err != nil {
		return nil, err
	}
	result.Recipient = recipient
	at := strings.LastIndexByte(recipient, '@')
	result.LocalPart = recipient[:at]
	result.Domain = recipient[at+1:]

	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Unparseable content type: treat the whole body as plain text.
		body, readErr := io.ReadAll(msg.Body)
		if readErr != nil {
			return nil, fmt.Errorf("read message body: %w", readErr)
		}
		result.TextBody = string(body)
		return result, nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("%w: multipart message missing boundary", ErrMalformed)
		}
		if err := walkMultipart(msg.Body, boundary, result); err != nil {
			return nil, err
		}
	} else {
		body, err := decodeBody(msg.Body, msg.Header.Get("Content-Transfer-Encoding"))
		if err != nil {
			return nil, fmt.Errorf("read message body: %w", err)
		}
		switch mediaType {
		case "text/html":
			result.HTMLBody = string(body)
			// HTML-only messages use the HTML as the plain body too.
			result.TextBody = string(body)
		default:
			result.TextBody = string(body)
		}
	}

	if result.TextBody == "" && result.HTMLBody != "" {
		result.TextBody = result.HTMLBody
	}

	return result, nil
}

// primaryRecipient returns the first To address, lowercased.
func primaryRecipient(to string) (string, error) {
	if strings.TrimSpace(to) == "" {
		return "", fmt.Errorf("%w: no recipient", ErrMalformed)
	}
	addresses, err := mail.ParseAddressList(to)
	if err != nil || len(addresses) == 0 {
		// Fall back to a bare address when the list has display-name junk
		// the stdlib rejects.
		candidate := strings.Trim(strings.TrimSpace(to), "<>")
		if strings.Count(candidate, "@") != 1 || strings.HasPrefix(candidate, "@") || strings.HasSuffix(candidate, "@") {
			return "", fmt.Errorf("%w: unparseable recipient %q", ErrMalformed, to)
		}
		return strings.ToLower(candidate), nil
	}
	return strings.ToLower(addresses[0].Address), nil
}

func walkMultipart(body io.Reader, boundary string, result *Message) error {
	reader := multipart.NewReader(body, boundary)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: read part: %v", ErrMalformed, err)
		}

		partType := part.Header.Get("Content-Type")
		if partType == "" {
			partType = "text/plain"
		}
		mediaType, params, err := mime.ParseMediaType(partType)
		if err != nil {
			continue
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			nested := params["boundary"]
			if nested == "" {
				continue
			}
			if err := walkMultipart(part, nested, result); err != nil {
				return err
			}
			continue
		}

		disposition := part.Header.Get("Content-Disposition")
		isAttachment := strings.HasPrefix(disposition, "attachment")
		filename := partFilename(part, params)
		contentID := strings.Trim(part.Header.Get("Content-Id"), "<>")

		switch {
		case isAttachment || (filename != "" && !isTextMedia(mediaType)):
			result.Attachments = append(result.Attachments, readAttachment(part, mediaType, filename, contentID, false))
		case contentID != "" && !isTextMedia(mediaType):
			// Inline resource (typically an image referenced as cid: from
			// the HTML body).
			result.Attachments = append(result.Attachments, readAttachment(part, mediaType, filename, contentID, true))
		case isTextMedia(mediaType):
			readTextBody(part, mediaType, result)
		case filename != "":
			result.Attachments = append(result.Attachments, readAttachment(part, mediaType, filename, contentID, false))
		}
	}
}

func readTextBody(part *multipart.Part, mediaType string, result *Message) {
	content, err := decodeBody(part, part.Header.Get("Content-Transfer-Encoding"))
	if err != nil {
		return
	}
	// First occurrence of each body kind wins.
	switch mediaType {
	case "text/plain":
		if result.TextBody == "" {
			result.TextBody = string(content)
		}
	case "text/html":
		if result.HTMLBody == "" {
			result.HTMLBody = string(content)
		}
	}
}

func readAttachment(part *multipart.Part, mediaType, filename, contentID string, inline bool) Part {
	p := Part{
		Filename:    filename,
		ContentType: mediaType,
		ContentID:   contentID,
		Inline:      inline,
	}
	if inline && p.Filename == "" {
		p.Filename = "inline_" + contentID
	}

	raw, err := io.ReadAll(part)
	if err != nil {
		p.DecodeError = true
		return p
	}

	encoding := strings.ToLower(strings.TrimSpace(part.Header.Get("Content-Transfer-Encoding")))
	decoded, err := decodeTransferEncoding(raw, encoding)
	if err != nil {
		// Malformed encoding: keep raw bytes and flag instead of aborting
		// the whole message.
		p.Content = raw
		p.DecodeError = true
		return p
	}
	p.Content = decoded
	return p
}

func decodeBody(r io.Reader, encoding string) ([]byte, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	decoded, err := decodeTransferEncoding(raw, strings.ToLower(strings.TrimSpace(encoding)))
	if err != nil {
		return raw, nil
	}
	return decoded, nil
}

func decodeTransferEncoding(raw []byte, encoding string) ([]byte, error) {
	switch encoding {
	case "base64":
		cleaned := strings.Map(func(r rune) rune {
			if r == '\r' || r == '\n' || r == ' ' || r == '\t' {
				return -1
			}
			return r
		}, string(raw))
		return base64.StdEncoding.DecodeString(cleaned)
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(bytes.NewReader(raw)))
	default:
		return raw, nil
	}
}

func partFilename(part *multipart.Part, params map[string]string) string {
	if name := part.FileName(); name != "" {
		return decodeHeader(name)
	}
	if name := params["name"]; name != "" {
		return decodeHeader(name)
	}
	return ""
}

// decodeHeader handles RFC 2047 encoded-words, falling back to the raw value.
func decodeHeader(value string) string {
	dec := &mime.WordDecoder{}
	decoded, err := dec.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

func canonicalKey(key string) string {
	return strings.TrimSpace(key)
}

func isTextMedia(mediaType string) bool {
	return mediaType == "text/plain" || mediaType == "text/html"
}
