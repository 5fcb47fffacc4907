// Package message defines the envelope exchanged between subsystems and
// the kernel-level path grammar used to address it.
package message

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Type distinguishes the processing contract a message carries.
type Type string

const (
	TypeSimple      Type = "simple"
	TypeAtomic      Type = "atomic"
	TypeBatch       Type = "batch"
	TypeQuery       Type = "query"
	TypeTransaction Type = "transaction"
	TypeResponse    Type = "response"
)

// Reserved meta field names. Callers may set any other key freely.
const (
	MetaInReplyTo           = "inReplyTo"
	MetaCorrelationID       = "correlationId"
	MetaProcessImmediately  = "processImmediately"
	MetaIsResponse          = "isResponse"
	MetaSuccess             = "success"
	MetaError               = "error"
)

// Meta is the open map of reserved and user-defined message metadata.
type Meta map[string]interface{}

// Get returns a meta value and whether it was present.
func (m Meta) Get(key string) (interface{}, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

// String returns a meta value coerced to string, or "" if absent/not a string.
func (m Meta) String(key string) string {
	v, ok := m.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Bool returns a meta value coerced to bool.
func (m Meta) Bool(key string) bool {
	v, ok := m.Get(key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Message is the immutable envelope passed through sendProtected.
type Message struct {
	ID            string
	Path          string
	Body          interface{}
	Meta          Meta
	Type          Type
	TransactionID string
	Seq           int
}

// New builds a message with a fresh ID and simple type, matching the
// zero-config path most callers take.
func New(path string, body interface{}) (*Message, error) {
	return NewWithType(path, body, TypeSimple)
}

// NewWithType builds a message of the given type, validating the path.
func NewWithType(path string, body interface{}, t Type) (*Message, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	return &Message{
		ID:   uuid.NewString(),
		Path: path,
		Body: body,
		Meta: Meta{},
		Type: t,
	}, nil
}

// Scheme returns the path's scheme (subsystem name) segment.
func (m *Message) Scheme() string {
	scheme, _, _ := splitScheme(m.Path)
	return scheme
}

// Segments returns the path segments following "scheme://".
func (m *Message) Segments() []string {
	_, rest, _ := splitScheme(m.Path)
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

// ErrEmptyPath is returned for an empty or whitespace-only path.
var ErrEmptyPath = fmt.Errorf("message: path must not be empty")

// ErrInvalidPath is returned when a path does not parse as
// scheme://segment(/segment)*.
var ErrInvalidPath = fmt.Errorf("message: path must match scheme://segment(/segment)*")

// ValidatePath checks a path against the shape of the path grammar:
//
//	path     := scheme "://" segment ("/" segment)*
//	scheme   := subsystem-name (identifier)
//	segment  := literal | "{" identifier "}"
//
// It requires a non-empty scheme, "://", and one or more non-empty
// "/"-separated segments. The characters of the scheme and of each
// segment are not checked.
func ValidatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrEmptyPath
	}
	scheme, rest, ok := splitScheme(path)
	if !ok || scheme == "" {
		return ErrInvalidPath
	}
	if rest == "" {
		return ErrInvalidPath
	}
	for _, seg := range strings.Split(rest, "/") {
		if seg == "" {
			return ErrInvalidPath
		}
	}
	return nil
}

func splitScheme(path string) (scheme string, rest string, ok bool) {
	idx := strings.Index(path, "://")
	if idx < 0 {
		return "", "", false
	}
	return path[:idx], path[idx+3:], true
}
