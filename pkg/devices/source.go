// Package devices holds the raw sensor records produced by the VR tracking
// system and the IR beacon camera, and the identities of the devices that
// produce them.
package devices

import (
	"fmt"
	"strings"
)

// SourceKind separates the VR and IR device namespaces. The two never share
// identifiers.
type SourceKind int

const (
	SourceVR SourceKind = iota + 1
	SourceIR
)

func (k SourceKind) String() string {
	switch k {
	case SourceVR:
		return "vr"
	case SourceIR:
		return "ir"
	default:
		return "unknown"
	}
}

// Source identifies one pose-producing device.
type Source struct {
	Kind SourceKind
	ID   string
}

func VRSource(id int) Source {
	return Source{Kind: SourceVR, ID: fmt.Sprint(id)}
}

func IRSource(camera string) Source {
	return Source{Kind: SourceIR, ID: camera}
}

// String renders the source as "kind:id", e.g. "vr:3".
func (s Source) String() string {
	return s.Kind.String() + ":" + s.ID
}

// Less orders sources by kind then id. Fusion sorts by it so that results
// do not depend on the order readings arrive in.
func (s Source) Less(o Source) bool {
	if s.Kind != o.Kind {
		return s.Kind < o.Kind
	}
	if len(s.ID) != len(o.ID) && isNumeric(s.ID) && isNumeric(o.ID) {
		return len(s.ID) < len(o.ID)
	}
	return s.ID < o.ID
}

func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Source) UnmarshalText(b []byte) error {
	kind, id, ok := strings.Cut(string(b), ":")
	if !ok || id == "" {
		return fmt.Errorf("invalid source %q", b)
	}
	switch kind {
	case "vr":
		s.Kind = SourceVR
	case "ir":
		s.Kind = SourceIR
	default:
		return fmt.Errorf("invalid source kind %q", kind)
	}
	s.ID = id
	return nil
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
