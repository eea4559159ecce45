package types

import (
	"strings"
	"unicode/utf8"
)

// Validate ensures the user meets directory requirements
// ARCHITECTURAL DISCOVERY: Validation at type level ensures consistency
// across the HTTP API, the CLI and the database layer
func (u *User) Validate() error {
	if !validLength(u.Name, 100) {
		return ErrInvalidUserName
	}
	if !u.Role.Valid() {
		return ErrInvalidRole
	}
	return nil
}

// Validate ensures the room meets catalog requirements
func (r *Room) Validate() error {
	if !validLength(r.Name, 200) {
		return ErrInvalidRoomName
	}
	if r.TeacherID <= 0 {
		return ErrInvalidReference
	}
	return nil
}

// Validate ensures the material meets catalog requirements
func (m *Material) Validate() error {
	if !validLength(m.Title, 200) {
		return ErrInvalidTitle
	}
	if m.RoomID <= 0 {
		return ErrInvalidReference
	}
	return nil
}

// validLength counts runes, not bytes, so Indonesian names with accents are measured fairly
func validLength(s string, max int) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	return n >= 1 && n <= max
}
