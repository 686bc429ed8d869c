package domain

import "errors"

// Error classes surfaced at the process boundary. Callers wrap them with context.
var (
	ErrConfig    = errors.New("configuration error")
	ErrConnect   = errors.New("connection error")
	ErrHandshake = errors.New("session handshake error")
	ErrDecode    = errors.New("packet decode error")
	ErrBackend   = errors.New("backend communication error")
)

// IsClassified reports whether err already carries one of the error classes.
func IsClassified(err error) bool {
	for _, class := range []error{ErrConfig, ErrConnect, ErrHandshake, ErrDecode, ErrBackend} {
		if errors.Is(err, class) {
			return true
		}
	}
	return false
}
