package app

import (
	"errors"
	"log/slog"
	"net/url"

	"github.com/V4T54L/ctf-relay/internal/domain"
)

// LogFatal logs err with a message naming its class.
func LogFatal(logger *slog.Logger, err error) {
	msg := "relay failed"
	switch {
	case errors.Is(err, domain.ErrConfig):
		msg = "invalid configuration"
	case errors.Is(err, domain.ErrHandshake):
		msg = "failed to start proxy session"
	case errors.Is(err, domain.ErrConnect):
		msg = "failed to connect"
	case errors.Is(err, domain.ErrDecode):
		msg = "failed to decode packet stream"
	case errors.Is(err, domain.ErrBackend):
		msg = "backend communication failed"
	}
	logger.Error(msg, "error", err)
}

// redactURL drops any password from a backend URL before it is logged.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid>"
	}
	return u.Redacted()
}
