package extracthtml

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Extraction kinds accepted in FieldRule.Extract.
const (
	ExtractText    = "text"
	ExtractAttr    = "attr"
	ExtractHTML    = "html"
	ExtractClass   = "class"
	ExtractExists  = "exists"
	ExtractRank    = "rank"
	ExtractJSEmail = "js_email"
	ExtractCFEmail = "cf_email"
)

// Value types accepted in FieldRule.Type.
const (
	TypeString = "string"
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeBool   = "bool"
	TypeList   = "list"
)

// CleanPhone selects the phone cleanup pass in Normalize.
const CleanPhone = "phone"

// SelfSelector addresses the listing element itself instead of a descendant.
const SelfSelector = ":self"

// RuleSet is one rule file: how to find listings and which fields to pull from each.
type RuleSet struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// ListingSelector picks candidate listings. Empty treats the whole
	// document as a single listing.
	ListingSelector string `json:"listing_selector,omitempty" yaml:"listing_selector,omitempty"`

	Accept AcceptRule  `json:"accept,omitempty" yaml:"accept,omitempty"`
	Fields []FieldRule `json:"fields" yaml:"fields"`

	// FatalOnListingError turns the first listing failure into a run failure.
	FatalOnListingError bool `json:"fatal_on_listing_error,omitempty" yaml:"fatal_on_listing_error,omitempty"`
}

// AcceptRule rejects listings that are present in the markup but are not real
// records. Selectors are evaluated inside the listing. An empty rule accepts all.
type AcceptRule struct {
	AnyOf  []string `json:"any_of,omitempty" yaml:"any_of,omitempty"`
	AllOf  []string `json:"all_of,omitempty" yaml:"all_of,omitempty"`
	NoneOf []string `json:"none_of,omitempty" yaml:"none_of,omitempty"`
}

// FieldRule describes how one output field is located, transformed and defaulted.
type FieldRule struct {
	Name string `json:"name" yaml:"name"`

	// Selectors are tried in order; the first yielding a non-empty value wins.
	Selectors []string `json:"selectors,omitempty" yaml:"selectors,omitempty"`

	Extract string `json:"extract,omitempty" yaml:"extract,omitempty"` // default "text"
	Attr    string `json:"attr,omitempty" yaml:"attr,omitempty"`
	All     bool   `json:"all,omitempty" yaml:"all,omitempty"`
	Index   int    `json:"index,omitempty" yaml:"index,omitempty"`

	Match   string        `json:"match,omitempty" yaml:"match,omitempty"`
	Srcset  bool          `json:"srcset,omitempty" yaml:"srcset,omitempty"`
	Digits  bool          `json:"digits,omitempty" yaml:"digits,omitempty"`
	Replace []Replacement `json:"replace,omitempty" yaml:"replace,omitempty"`
	Title   bool          `json:"title,omitempty" yaml:"title,omitempty"`
	Resolve bool          `json:"resolve,omitempty" yaml:"resolve,omitempty"`
	Enum    []EnumEntry   `json:"enum,omitempty" yaml:"enum,omitempty"`

	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	Clean    string `json:"clean,omitempty" yaml:"clean,omitempty"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`

	// Default is used on a miss or a failed transform. String defaults may
	// contain "{index}", replaced with the listing's 0-based candidate index.
	Default any `json:"default,omitempty" yaml:"default,omitempty"`
}

// Replacement is one literal old→new substitution.
type Replacement struct {
	Old string `json:"old" yaml:"old"`
	New string `json:"new" yaml:"new"`
}

// EnumEntry maps a class token (or case-folded text) to a value. Entries are
// checked in declaration order; the first hit wins.
type EnumEntry struct {
	Key   string `json:"key" yaml:"key"`
	Value any    `json:"value" yaml:"value"`
}

// Column is one schema entry of a RecordSet. Clean and Default carry what
// Normalize needs so a RecordSet can be normalized on its own.
type Column struct {
	Name    string
	Type    string
	Clean   string
	Default any
}

// Record is one extracted listing. Fields holds the field order; every name
// in Fields has an entry in Values (nil when absent).
type Record struct {
	Fields []string
	Values map[string]any
}

// NewRecord returns a Record with every field present and nil.
func NewRecord(fields []string) Record {
	r := Record{
		Fields: append([]string(nil), fields...),
		Values: make(map[string]any, len(fields)),
	}
	for _, f := range fields {
		r.Values[f] = nil
	}
	return r
}

// Get returns the value of field name.
func (r Record) Get(name string) (any, bool) {
	v, ok := r.Values[name]
	return v, ok
}

// Set stores v under name, appending name to Fields if it is new.
func (r *Record) Set(name string, v any) {
	if r.Values == nil {
		r.Values = make(map[string]any)
	}
	if _, ok := r.Values[name]; !ok {
		r.Fields = append(r.Fields, name)
	}
	r.Values[name] = v
}

// MarshalJSON writes the record as an object in field order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeValue(&buf, name); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := encodeValue(&buf, r.Values[name]); err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// encodeValue writes v without HTML escaping; extracted text keeps its < and &.
func encodeValue(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encode terminates with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

// RecordSet is the ordered result of one extraction run.
type RecordSet struct {
	Schema  []Column
	Records []Record

	// Candidates counts listings matched by the listing selector.
	Candidates int
	// Rejected counts listings that failed the acceptance rule.
	Rejected int
	// Skipped holds listings dropped at the listing boundary.
	Skipped []ListingError
}

// SkippedCount is the number of listings dropped because of processing errors.
func (rs RecordSet) SkippedCount() int { return len(rs.Skipped) }

// Names returns the column names in schema order.
func (rs RecordSet) Names() []string {
	out := make([]string, len(rs.Schema))
	for i, c := range rs.Schema {
		out[i] = c.Name
	}
	return out
}

// Column returns the schema entry for name.
func (rs RecordSet) Column(name string) (Column, bool) {
	for _, c := range rs.Schema {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

var (
	// ErrNilDocument is returned when Extract is handed no document.
	ErrNilDocument = errors.New("extracthtml: nil document")

	// ErrNoFields is returned for rule sets without field rules.
	ErrNoFields = errors.New("extracthtml: rule set has no fields")

	// ErrRequiredField marks a listing whose required field resolved to nothing.
	ErrRequiredField = errors.New("required field missing")
)

// TransformError reports a matched value that could not be transformed.
// It never leaves the listing: the field falls back to its default.
type TransformError struct {
	Field string
	Value string
	Err   error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("field %q: transform %q: %v", e.Field, e.Value, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// ListingError is a failure contained at the listing boundary.
type ListingError struct {
	Index int
	Err   error
}

func (e ListingError) Error() string {
	return fmt.Sprintf("listing %d: %v", e.Index, e.Err)
}

func (e ListingError) Unwrap() error { return e.Err }
