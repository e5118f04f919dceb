package schema

import (
	"net/mail"
	"net/url"
	"time"

	"github.com/google/uuid"
)

var formatCheckers = map[Format]func(string) bool{
	FormatEmail:    isEmail,
	FormatURI:      isURI,
	FormatDateTime: isDateTime,
	FormatDate:     isDate,
	FormatUUID:     isUUID,
}

// KnownFormat reports whether f has a predicate.
func KnownFormat(f Format) bool {
	_, ok := formatCheckers[f]
	return ok
}

// isEmail accepts a bare addr-spec; display names are rejected.
func isEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Name == "" && addr.Address == s
}

// isURI requires an absolute URI.
func isURI(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" {
		return false
	}
	return u.Host != "" || u.Opaque != "" || u.Path != ""
}

func isDateTime(s string) bool {
	_, err := time.Parse(time.RFC3339, s)
	return err == nil
}

func isDate(s string) bool {
	_, err := time.Parse(time.DateOnly, s)
	return err == nil
}

// isUUID accepts only the canonical 36-character form.
func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
