package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"strings"
	"time"

	"github.com/DukeRupert/fixiepixie/internal/domain"
	"github.com/google/uuid"
)

// base64LineLength is the RFC 2045 line limit for base64 bodies.
const base64LineLength = 76

// header carries the envelope fields written ahead of the MIME body.
// Blind copies never appear here; they are added to the SMTP envelope only.
type header struct {
	From      string
	To        []string
	MessageID string
	Date      time.Time
}

// mimeLayout selects how the composed bodies are packaged.
type mimeLayout int

const (
	// layoutAlternative sends text/plain and text/html as alternatives,
	// wrapped in multipart/mixed when there is an attachment.
	layoutAlternative mimeLayout = iota

	// layoutHTML sends a multipart/mixed with a single text/html part and
	// the optional attachment, as mailbox providers expect.
	layoutHTML
)

// buildMessage constructs the raw RFC 5322 message.
func buildMessage(h header, msg *domain.ComposedMessage, layout mimeLayout) ([]byte, error) {
	var buf bytes.Buffer

	if h.From != "" {
		writeHeader(&buf, "From", h.From)
	}
	writeHeader(&buf, "To", strings.Join(h.To, ", "))
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	if !h.Date.IsZero() {
		writeHeader(&buf, "Date", h.Date.Format(time.RFC1123Z))
	}
	if h.MessageID != "" {
		writeHeader(&buf, "Message-ID", h.MessageID)
	}
	buf.WriteString("MIME-Version: 1.0\r\n")

	switch {
	case layout == layoutHTML:
		boundary := newBoundary()
		writeHeader(&buf, "Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", boundary))
		buf.WriteString("\r\n")
		if err := writeTextPart(&buf, boundary, "text/html", msg.HTMLBody); err != nil {
			return nil, err
		}
		if msg.HasAttachment() {
			writeAttachmentPart(&buf, boundary, msg.Attachment)
		}
		fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	case msg.HasAttachment():
		mixed := newBoundary()
		writeHeader(&buf, "Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", mixed))
		buf.WriteString("\r\n")
		fmt.Fprintf(&buf, "--%s\r\n", mixed)
		if err := writeAlternative(&buf, msg); err != nil {
			return nil, err
		}
		writeAttachmentPart(&buf, mixed, msg.Attachment)
		fmt.Fprintf(&buf, "--%s--\r\n", mixed)

	default:
		if err := writeAlternative(&buf, msg); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// writeAlternative writes a multipart/alternative entity, headers included.
func writeAlternative(buf *bytes.Buffer, msg *domain.ComposedMessage) error {
	boundary := newBoundary()
	writeHeader(buf, "Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", boundary))
	buf.WriteString("\r\n")

	if err := writeTextPart(buf, boundary, "text/plain", msg.PlainBody); err != nil {
		return err
	}
	if err := writeTextPart(buf, boundary, "text/html", msg.HTMLBody); err != nil {
		return err
	}
	fmt.Fprintf(buf, "--%s--\r\n", boundary)
	return nil
}

func writeTextPart(buf *bytes.Buffer, boundary, contentType, body string) error {
	fmt.Fprintf(buf, "--%s\r\n", boundary)
	writeHeader(buf, "Content-Type", contentType+"; charset=utf-8")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(buf)
	if _, err := qp.Write([]byte(body)); err != nil {
		return fmt.Errorf("encode %s part: %w", contentType, err)
	}
	if err := qp.Close(); err != nil {
		return fmt.Errorf("encode %s part: %w", contentType, err)
	}
	buf.WriteString("\r\n")
	return nil
}

func writeAttachmentPart(buf *bytes.Buffer, boundary string, a *domain.Attachment) {
	contentType := mime.FormatMediaType(a.ContentType, map[string]string{"name": a.Filename})
	if contentType == "" {
		contentType = mime.FormatMediaType("application/octet-stream", map[string]string{"name": a.Filename})
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename})

	fmt.Fprintf(buf, "--%s\r\n", boundary)
	writeHeader(buf, "Content-Type", contentType)
	buf.WriteString("Content-Transfer-Encoding: base64\r\n")
	writeHeader(buf, "Content-Disposition", disposition)
	buf.WriteString("\r\n")
	writeBase64Lines(buf, a.Data)
}

// writeBase64Lines writes data as base64 wrapped at 76 columns.
func writeBase64Lines(buf *bytes.Buffer, data []byte) {
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > base64LineLength {
		buf.WriteString(enc[:base64LineLength])
		buf.WriteString("\r\n")
		enc = enc[base64LineLength:]
	}
	if enc != "" {
		buf.WriteString(enc)
		buf.WriteString("\r\n")
	}
}

// writeHeader writes one header line, dropping CR and LF from the value.
func writeHeader(buf *bytes.Buffer, name, value string) {
	value = strings.NewReplacer("\r", "", "\n", "").Replace(value)
	fmt.Fprintf(buf, "%s: %s\r\n", name, value)
}

func newBoundary() string {
	return "fixiepixie-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// newMessageID returns a Message-ID in the sender's domain.
func newMessageID(from string) string {
	host := "fixiepixie.local"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		host = from[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), host)
}
