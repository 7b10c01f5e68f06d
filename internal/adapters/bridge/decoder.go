// Package bridge delivers background sync notices to the application bridge
// from an inbox directory or a websocket endpoint.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	appbridge "github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/bridge"
	domainErrors "github.com/NocodeBuilds/ppe-inspector-sub000/internal/domain/errors"
)

const schemaURL = "ppesync://bridge-message.json"

// messageSchema describes every frame a background runner may send. The type
// is left open so unknown notices still decode and are ignored downstream.
const messageSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type"],
  "properties": {
    "type":   {"type": "string", "minLength": 1, "pattern": "^[A-Z][A-Z0-9_]*$"},
    "status": {"type": "string"},
    "tag":    {"type": "string"}
  }
}`

// Handler consumes decoded messages.
type Handler interface {
	Handle(ctx context.Context, msg appbridge.Message) error
}

// Decoder validates raw frames against the message schema.
type Decoder struct {
	schema *jsonschema.Schema
}

// NewDecoder compiles the embedded schema.
func NewDecoder() (*Decoder, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(messageSchema))
	if err != nil {
		return nil, err
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, err
	}
	schema, err := c.Compile(schemaURL)
	if err != nil {
		return nil, err
	}
	return &Decoder{schema: schema}, nil
}

// Decode validates raw and converts it to a Message.
func (d *Decoder) Decode(raw []byte) (appbridge.Message, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return appbridge.Message{}, domainErrors.NewError(domainErrors.CodeValidation, "bridge message is not JSON", domainErrors.ErrInvalidPayload)
	}
	if err := d.schema.Validate(inst); err != nil {
		return appbridge.Message{}, domainErrors.NewError(domainErrors.CodeValidation, "bridge message rejected: "+err.Error(), domainErrors.ErrInvalidPayload)
	}

	var msg appbridge.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return appbridge.Message{}, domainErrors.NewError(domainErrors.CodeValidation, "bridge message", err)
	}
	return msg, nil
}
