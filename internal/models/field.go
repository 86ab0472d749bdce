package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// FieldType describes how a custom field value is interpreted.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldCheckbox FieldType = "checkbox"
)

// CustomField is a user-defined attribute attached to a task, keyed by Name.
type CustomField struct {
	Name  string    `json:"name"`
	Type  FieldType `json:"type"`
	Value string    `json:"value"`
}

// Validate checks that the field has a name, a known type and a value matching it.
func (f *CustomField) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return errors.New("custom field name is required")
	}

	switch f.Type {
	case FieldText:
	case FieldNumber:
		if f.Value != "" {
			if _, err := strconv.ParseFloat(f.Value, 64); err != nil {
				return fmt.Errorf("custom field %q must be a number", f.Name)
			}
		}
	case FieldCheckbox:
		if f.Value != "" {
			if _, err := strconv.ParseBool(f.Value); err != nil {
				return fmt.Errorf("custom field %q must be true or false", f.Name)
			}
		}
	default:
		return fmt.Errorf("custom field type must be '%s', '%s', or '%s'", FieldText, FieldNumber, FieldCheckbox)
	}

	return nil
}
