// Package models defines the core entities the orchestration engine
// operates on: extensions and their schemas, environments and their
// resources, jobs and their steps, and the execution records produced
// by running a job.
package models

import "encoding/json"

// AttributeKind is a tagged variant describing the shape of a
// configuration or operation-parameter attribute.
type AttributeKind string

const (
	AttributeKindString     AttributeKind = "string"
	AttributeKindStringList AttributeKind = "string_list"
	AttributeKindLongString AttributeKind = "long_string"
	AttributeKindCode       AttributeKind = "code"
	AttributeKindPassword   AttributeKind = "password"
	AttributeKindEnum       AttributeKind = "enum"
	AttributeKindEnumList   AttributeKind = "enum_list"
	AttributeKindBool       AttributeKind = "bool"
	AttributeKindFile       AttributeKind = "file"
	AttributeKindFileList   AttributeKind = "file_list"
)

// EnumOption is one selectable choice of an Enum/EnumList attribute.
type EnumOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// AttributeType carries the kind-specific detail of an Attribute. Only
// the fields relevant to Kind are populated; this mirrors a Rust-style
// tagged union using a discriminated Go struct rather than an
// interface, since attribute types are closed and serialized as-is.
type AttributeType struct {
	Kind     AttributeKind `json:"kind"`
	Language string        `json:"language,omitempty"` // populated when Kind == Code
	Options  []EnumOption  `json:"options,omitempty"`  // populated when Kind == Enum or EnumList
}

// Attribute describes one field of an extension's configuration schema
// or of an operation's parameter schema.
type Attribute struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Required    bool          `json:"required"`
	Type        AttributeType `json:"type"`
}

// Validate checks a raw JSON value against this attribute's declared
// type and required-ness. It performs shape validation only (is this a
// string, is this one of the enum options); it does not evaluate
// cross-field or business-rule constraints, which are the extension's
// own ValidateOperationParameter responsibility.
func (a Attribute) Validate(raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		if a.Required {
			return ErrAttributeRequired{Attribute: a.Name}
		}
		return nil
	}

	switch a.Type.Kind {
	case AttributeKindString, AttributeKindLongString, AttributeKindPassword, AttributeKindFile:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ErrAttributeType{Attribute: a.Name, Want: "string"}
		}
	case AttributeKindStringList, AttributeKindFileList:
		var s []string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ErrAttributeType{Attribute: a.Name, Want: "string list"}
		}
	case AttributeKindCode:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ErrAttributeType{Attribute: a.Name, Want: "code string"}
		}
	case AttributeKindBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return ErrAttributeType{Attribute: a.Name, Want: "bool"}
		}
	case AttributeKindEnum:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ErrAttributeType{Attribute: a.Name, Want: "enum value"}
		}
		if !a.hasOption(s) {
			return ErrAttributeEnumValue{Attribute: a.Name, Value: s}
		}
	case AttributeKindEnumList:
		var values []string
		if err := json.Unmarshal(raw, &values); err != nil {
			return ErrAttributeType{Attribute: a.Name, Want: "enum value list"}
		}
		for _, v := range values {
			if !a.hasOption(v) {
				return ErrAttributeEnumValue{Attribute: a.Name, Value: v}
			}
		}
	}

	return nil
}

func (a Attribute) hasOption(value string) bool {
	for _, opt := range a.Type.Options {
		if opt.Value == value {
			return true
		}
	}
	return false
}

// ValidateAttributes validates a JSON object against a schema of
// attributes: every required attribute must be present and every
// present attribute must validate against its declared type.
func ValidateAttributes(schema []Attribute, obj json.RawMessage) error {
	var fields map[string]json.RawMessage
	if len(obj) == 0 {
		fields = map[string]json.RawMessage{}
	} else if err := json.Unmarshal(obj, &fields); err != nil {
		return ErrInvalidParameterShape{Detail: err.Error()}
	}

	for _, attr := range schema {
		if err := attr.Validate(fields[attr.ID]); err != nil {
			return err
		}
	}

	return nil
}
