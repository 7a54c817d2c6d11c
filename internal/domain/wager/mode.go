// Package wager holds the data model shared by the queue, the bet ledger,
// the mediator pool and the snapshot gateway.
package wager

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Format carries the arity of a match. The coordinator only ever asks it for
// Capacity and Split, it never looks at the mode string.
type Format uint8

const (
	Format1v1 Format = iota + 1
	Format2v2
	Format4v4
)

func (f Format) TeamSize() int {
	switch f {
	case Format1v1:
		return 1
	case Format2v2:
		return 2
	case Format4v4:
		return 4
	}
	return 0
}

// Teams is always two; kept as a method so pairing rules live in one place.
func (f Format) Teams() int { return 2 }

func (f Format) Capacity() int { return f.Teams() * f.TeamSize() }

func (f Format) String() string {
	if f.TeamSize() == 0 {
		return "unknown"
	}
	return fmt.Sprintf("%dv%d", f.TeamSize(), f.TeamSize())
}

// Mode is a format plus a cosmetic variant label (mob, misto, emu...).
type Mode struct {
	Format  Format
	Variant string
}

// ParseMode accepts "1v1", "2v2-mob", "4v4-misto" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	head, variant, _ := strings.Cut(s, "-")
	var f Format
	switch head {
	case "1v1":
		f = Format1v1
	case "2v2":
		f = Format2v2
	case "4v4":
		f = Format4v4
	default:
		return Mode{}, fmt.Errorf("unknown mode %q", s)
	}
	return Mode{Format: f, Variant: variant}, nil
}

func MustMode(s string) Mode {
	m, err := ParseMode(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Mode) Valid() bool { return m.Format.TeamSize() > 0 }

func (m Mode) Capacity() int { return m.Format.Capacity() }

func (m Mode) String() string {
	if m.Variant == "" {
		return m.Format.String()
	}
	return m.Format.String() + "-" + m.Variant
}

// Title is the human label used on panels ("2v2 Mob").
func (m Mode) Title() string {
	if m.Variant == "" {
		return m.Format.String()
	}
	r, size := utf8.DecodeRuneInString(m.Variant)
	return m.Format.String() + " " + string(unicode.ToUpper(r)) + m.Variant[size:]
}

// Split deals a full group into teams in join order: the first TeamSize
// members form team 1, the next TeamSize team 2.
func (m Mode) Split(group []string) ([][]string, error) {
	if len(group) != m.Capacity() {
		return nil, fmt.Errorf("mode %s needs %d participants, got %d", m, m.Capacity(), len(group))
	}
	size := m.Format.TeamSize()
	teams := make([][]string, 0, m.Format.Teams())
	for i := 0; i < len(group); i += size {
		teams = append(teams, append([]string(nil), group[i:i+size]...))
	}
	return teams, nil
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	if s := string(b); s == "" || s == "unknown" {
		*m = Mode{}
		return nil
	}
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
