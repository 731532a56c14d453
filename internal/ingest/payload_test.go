package ingest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"mailhook/internal/ingest/attachments"
	"mailhook/internal/ingest/parser"
)

func TestBuildPayloadFields(t *testing.T) {
	msg := &parser.Message{
		Sender:        "alice@sender.example",
		Recipient:     "sales@example.com",
		Subject:       "hello",
		Date:          "Mon, 24 Aug 2026 10:00:00 +0000",
		MessageID:     "<abc@sender.example>",
		CC:            "bob@sender.example",
		ReplyTo:       "alice+reply@sender.example",
		Importance:    "high",
		CustomHeaders: map[string]string{"X-Campaign": "q3"},
		TextBody:      "hi there",
	}

	raw, err := BuildPayload("msg-1", msg, nil)
	require.NoError(t, err)

	var payload Payload
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.Equal(t, "msg-1", payload.EmailID)
	require.Equal(t, "alice@sender.example", payload.Sender)
	require.Equal(t, "q3", payload.CustomHeaders["X-Campaign"])
	require.Equal(t, "high", payload.Importance)
	require.Equal(t, "hi there", payload.Body)
	require.Empty(t, payload.Attachments)
}

func TestBuildPayloadRewritesInlineImages(t *testing.T) {
	msg := &parser.Message{
		Recipient: "sales@example.com",
		HTMLBody:  `<html><img src="cid:logo123"></html>`,
	}
	refs := []attachments.Ref{
		{Filename: "logo.png", ContentID: "logo123", Inline: true, PublicURL: "https://attachments.s3.amazonaws.com/inline_images/logo.png"},
		{Filename: "report.pdf", PublicURL: "https://attachments.s3.amazonaws.com/ab12/report.pdf"},
	}

	raw, err := BuildPayload("msg-1", msg, refs)
	require.NoError(t, err)

	var payload Payload
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.Contains(t, payload.HTMLBody, "https://attachments.s3.amazonaws.com/inline_images/logo.png")
	require.NotContains(t, payload.HTMLBody, "cid:")

	// inline resources are folded into the HTML, not listed as attachments
	require.Len(t, payload.Attachments, 1)
	require.Equal(t, "report.pdf", payload.Attachments[0].Filename)
}
