package email

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/otp-autofill/internal/extract"
	"github.com/nhle/otp-autofill/internal/model"
)

// maxPartBytes bounds how much of a single text part is read.
const maxPartBytes = 1 << 20

// ParseMessage reads an RFC 5322 message into the provider-neutral part
// tree. Text parts carry their decoded content; attachments and binary
// parts keep only their headers.
func ParseMessage(id string, r io.Reader) (*model.RawMessage, error) {
	entity, err := message.Read(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("parsing message %s: %w", id, err)
	}

	payload := partFromEntity(entity)

	msg := &model.RawMessage{
		ID:       id,
		Provider: model.ProviderIMAP,
		Payload:  payload,
	}
	h := mail.Header{Header: entity.Header}
	if date, err := h.Date(); err == nil {
		msg.InternalDate = date
	}
	return msg, nil
}

// partFromEntity never fails: a part whose body cannot be decoded keeps its
// headers and contributes no text, and a broken multipart stops at the last
// readable child.
func partFromEntity(e *message.Entity) *model.Part {
	mediaType, _, err := e.Header.ContentType()
	if err != nil || mediaType == "" {
		mediaType = "text/plain"
	}
	part := &model.Part{
		MimeType: mediaType,
		Headers:  headers(e.Header),
	}

	if mr := e.MultipartReader(); mr != nil {
		for {
			child, err := mr.NextPart()
			if err != nil && !message.IsUnknownCharset(err) {
				break
			}
			part.Parts = append(part.Parts, partFromEntity(child))
		}
		return part
	}

	if !strings.HasPrefix(mediaType, "text/") || isAttachment(e.Header) {
		return part
	}
	body, err := io.ReadAll(io.LimitReader(e.Body, maxPartBytes))
	if err != nil {
		return part
	}
	part.Body = &model.Body{Data: extract.EncodeBody(string(body))}
	return part
}

func headers(h message.Header) []model.Header {
	var out []model.Header
	fields := h.Fields()
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		out = append(out, model.Header{Name: fields.Key(), Value: value})
	}
	return out
}

func isAttachment(h message.Header) bool {
	disp, _, err := h.ContentDisposition()
	return err == nil && strings.EqualFold(disp, "attachment")
}
