package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Lead is one entry of the CRM leads listing.
type Lead struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	CreatedAt    int64         `json:"created_at"`
	CustomFields []CustomField `json:"custom_fields_values"`
}

type CustomField struct {
	FieldID   int64        `json:"field_id"`
	FieldName string       `json:"field_name"`
	Values    []FieldValue `json:"values"`
}

type FieldValue struct {
	Value  ScalarValue `json:"value"`
	EnumID *int64      `json:"enum_id,omitempty"`
}

// Equal compares value (including its kind) and enum id.
func (v FieldValue) Equal(o FieldValue) bool {
	if v.Value != o.Value {
		return false
	}
	if v.EnumID == nil || o.EnumID == nil {
		return v.EnumID == nil && o.EnumID == nil
	}
	return *v.EnumID == *o.EnumID
}

type ValueKind int

const (
	KindString ValueKind = iota
	KindInt
)

// ScalarValue holds either a string or an integer; the CRM sends both under the same key.
type ScalarValue struct {
	Kind ValueKind
	Str  string
	Int  int64
}

func StringValue(s string) ScalarValue { return ScalarValue{Kind: KindString, Str: s} }
func IntValue(i int64) ScalarValue     { return ScalarValue{Kind: KindInt, Int: i} }

func (s ScalarValue) String() string {
	if s.Kind == KindInt {
		return strconv.FormatInt(s.Int, 10)
	}
	return s.Str
}

func (s *ScalarValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = StringValue(str)
		return nil
	}
	i, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("field value must be a string or an integer, got %s", data)
	}
	*s = IntValue(i)
	return nil
}

func (s ScalarValue) MarshalJSON() ([]byte, error) {
	if s.Kind == KindInt {
		return []byte(strconv.FormatInt(s.Int, 10)), nil
	}
	return json.Marshal(s.Str)
}

// ContractCriterion identifies the custom field that marks a lead as a signed sale contract.
type ContractCriterion struct {
	FieldID   int64  `yaml:"field_id" validate:"required"`
	FieldName string `yaml:"field_name" validate:"required"`
	Value     string `yaml:"value" validate:"required"`
	EnumID    int64  `yaml:"enum_id"`
}

func DefaultCriterion() ContractCriterion {
	return ContractCriterion{
		FieldID:   1631153,
		FieldName: "Тип договора",
		Value:     "ДКП",
		EnumID:    4661181,
	}
}

// Expected returns the exact values list a qualifying field must carry.
func (c ContractCriterion) Expected() []FieldValue {
	enumID := c.EnumID
	return []FieldValue{{Value: StringValue(c.Value), EnumID: &enumID}}
}
