package upstream

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/magneto-serge/magneto/internal/cassette"

	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

// Classify converts the error from a failed upstream request to the form in which it is recorded.
// The timeout is recorded along with timeout errors.
func Classify(err error, timeout time.Duration) cassette.NetworkError {
	ne := cassette.NetworkError{Type: classifyType(err), Message: err.Error()}
	if ne.Type == cassette.NetworkErrorTimeout && timeout > 0 {
		ne.TimeoutMS = ldvalue.NewOptionalInt(int(timeout / time.Millisecond))
	}
	return ne
}

func classifyType(err error) cassette.NetworkErrorType {
	var dnsErr *net.DNSError
	var netErr net.Error
	var certErr *tls.CertificateVerificationError
	var recordErr tls.RecordHeaderError
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var invalidCert x509.CertificateInvalidError

	switch {
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			return cassette.NetworkErrorTimeout
		}
		return cassette.NetworkErrorDNS
	case errors.Is(err, syscall.ECONNREFUSED):
		return cassette.NetworkErrorConnectionRefused
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return cassette.NetworkErrorConnectionReset
	case errors.As(err, &certErr), errors.As(err, &recordErr), errors.As(err, &unknownAuthority),
		errors.As(err, &hostnameErr), errors.As(err, &invalidCert):
		return cassette.NetworkErrorTLS
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return cassette.NetworkErrorTimeout
	case strings.Contains(err.Error(), "stopped after") && strings.Contains(err.Error(), "redirects"):
		return cassette.NetworkErrorTooManyRedirects
	case strings.Contains(err.Error(), "tls:") || strings.Contains(err.Error(), "x509:"):
		return cassette.NetworkErrorTLS
	default:
		return cassette.NetworkErrorOther
	}
}
