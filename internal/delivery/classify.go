package delivery

import (
	stderrors "errors"
	"net"
	"strings"
	"syscall"

	"github.com/greeterhq/chat-server-go/internal/errors"
)

func classifyTransportError(err error) error {
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.DeliveryTimeout(err)
	}

	if stderrors.Is(err, syscall.ECONNREFUSED) {
		return errors.DeliveryRefused(err)
	}

	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return errors.DeliveryRefused(err)
	}

	return errors.DeliveryServer(err)
}

// classifySMTPError maps SMTP reply text to a delivery error class.
// gomail surfaces server replies as plain error strings, so this keys
// off the reply codes embedded in them.
func classifySMTPError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "535") || strings.Contains(msg, "534") ||
		strings.Contains(msg, "auth"):
		return errors.DeliveryAuth(err)
	case strings.Contains(msg, "550") || strings.Contains(msg, "553"):
		return errors.InvalidRecipient("").WithCause(err)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return errors.DeliveryTimeout(err)
	case strings.Contains(msg, "connection refused"):
		return errors.DeliveryRefused(err)
	default:
		return classifyTransportError(err)
	}
}
