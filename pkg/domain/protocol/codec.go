package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrUnknownAction is returned for a message whose action tag is not recognised.
	ErrUnknownAction = errors.New("unknown action")
	// ErrMissingAction is returned for a message without an action tag.
	ErrMissingAction = errors.New("message has no action")
)

// SchemaError reports a message that failed boundary validation.
type SchemaError struct {
	Action   Action
	Problems []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid %s message: %s", e.Action, strings.Join(e.Problems, "; "))
}

const checkCredibilitySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["action", "text"],
  "properties": {
    "action": { "const": "checkCredibility" },
    "text": { "type": "string" }
  }
}`

const emptySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["action"],
  "properties": {
    "action": { "type": "string" }
  }
}`

const saveSettingsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["action", "settings"],
  "properties": {
    "action": { "const": "saveSettings" },
    "settings": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "serviceUrl": { "type": "string" },
        "autoCheck": { "type": "boolean" },
        "notificationsEnabled": { "type": "boolean" }
      }
    }
  }
}`

const highlightTextSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["action", "text", "score"],
  "properties": {
    "action": { "const": "highlightText" },
    "text": { "type": "string" },
    "score": { "type": "integer", "minimum": 0, "maximum": 100 }
  }
}`

const checkSelectedTextSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["action"],
  "properties": {
    "action": { "const": "checkSelectedText" },
    "text": { "type": "string" }
  }
}`

type actionCodec struct {
	schema gojsonschema.JSONLoader
	decode func(raw []byte) (Request, error)
}

var codecs = map[Action]actionCodec{
	ActionCheckCredibility:  {gojsonschema.NewStringLoader(checkCredibilitySchema), decodeAs[CheckCredibility]},
	ActionGetSettings:       {gojsonschema.NewStringLoader(emptySchema), decodeAs[GetSettings]},
	ActionSaveSettings:      {gojsonschema.NewStringLoader(saveSettingsSchema), decodeAs[SaveSettings]},
	ActionGetSelectedText:   {gojsonschema.NewStringLoader(emptySchema), decodeAs[GetSelectedText]},
	ActionHighlightText:     {gojsonschema.NewStringLoader(highlightTextSchema), decodeAs[HighlightText]},
	ActionCheckSelectedText: {gojsonschema.NewStringLoader(checkSelectedTextSchema), decodeAs[CheckSelectedText]},
}

func decodeAs[T Request](raw []byte) (Request, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeRequest validates a raw message against its action's schema and
// decodes it into the matching request type.
func DecodeRequest(raw []byte) (Request, error) {
	var tag struct {
		Action Action `json:"action"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if tag.Action == "" {
		return nil, ErrMissingAction
	}
	codec, ok := codecs[tag.Action]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, tag.Action)
	}

	result, err := gojsonschema.Validate(codec.schema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("validate %s message: %w", tag.Action, err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, &SchemaError{Action: tag.Action, Problems: problems}
	}

	req, err := codec.decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s message: %w", tag.Action, err)
	}
	return req, nil
}

// EncodeRequest marshals req with its action tag.
func EncodeRequest(req Request) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", req.Action(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s message: %w", req.Action(), err)
	}
	action, err := json.Marshal(req.Action())
	if err != nil {
		return nil, err
	}
	fields["action"] = action
	return json.Marshal(fields)
}

// DecodeResponse decodes the reply to action. A reply carrying an error in
// place of the normal shape decodes to ErrorResponse, except for
// checkCredibility whose own response already has that shape.
func DecodeResponse(action Action, raw []byte) (Response, error) {
	if action != ActionCheckCredibility {
		var probe struct {
			Error *string `json:"error"`
		}
		if err := json.Unmarshal(raw, &probe); err == nil && probe.Error != nil {
			return unmarshalResponse[ErrorResponse](raw)
		}
	}

	switch action {
	case ActionCheckCredibility:
		return unmarshalResponse[CheckCredibilityResponse](raw)
	case ActionGetSettings:
		return unmarshalResponse[SettingsResponse](raw)
	case ActionSaveSettings:
		return unmarshalResponse[SaveSettingsResponse](raw)
	case ActionGetSelectedText:
		return unmarshalResponse[SelectedTextResponse](raw)
	default:
		return nil, fmt.Errorf("%w: %s has no response", ErrUnknownAction, action)
	}
}

func unmarshalResponse[T Response](raw []byte) (Response, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return v, nil
}
