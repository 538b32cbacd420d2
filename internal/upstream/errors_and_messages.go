package upstream

import "fmt"

const (
	logMsgUsingProxy         = "Using proxy server at %s"
	logMsgInsecureSkipVerify = "TLS certificate verification of upstream servers is disabled"
)

func errCannotReadCACertFile(path string, err error) error {
	return fmt.Errorf("unable to read CA certificate file %q: %w", path, err)
}

func errInvalidCACertData(path string) error {
	return fmt.Errorf("invalid CA certificate data in %q", path)
}
