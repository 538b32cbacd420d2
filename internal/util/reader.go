package util

import (
	"compress/gzip"
	"errors"
	"io"

	ct "github.com/launchdarkly/go-configtypes"
)

// ErrPayloadTooLarge is returned by a PayloadReader once more than MaxBytes have been read.
var ErrPayloadTooLarge = errors.New("max bytes exceeded")

// PayloadReader is an implementation of io.Reader that reads bytes off a request or response body,
// optionally decompresses them, and has a limit attached. If the limit is exceeded, ErrPayloadTooLarge
// is returned and the underlying stream is closed.
//
// The limit is applied to the uncompressed stream, and the compressed stream can never be longer
// than that either, so a small gzip payload cannot expand without bound.
type PayloadReader struct {
	IsGzipped bool
	MaxBytes  int64

	uncompressedBytesRead int64

	wrappedBaseStream *byteCountingReader
	stream            io.Reader
}

// NewReader creates a new reader. If the stream is not gzipped and there is no limit, the original
// reader is returned as is.
func NewReader(r io.ReadCloser, isGzipped bool, maxPayloadSize ct.OptBase2Bytes) (io.ReadCloser, error) {
	if !isGzipped && !maxPayloadSize.IsDefined() {
		return r, nil
	}

	baseStream := &byteCountingReader{baseStream: r}
	var s io.Reader = baseStream

	if isGzipped {
		gzipReader, err := gzip.NewReader(s)
		if err != nil {
			return nil, err
		}
		s = gzipReader
	}

	maxBytes := int64(-1)
	if maxPayloadSize.IsDefined() {
		maxBytes = int64(maxPayloadSize.GetOrElse(0))
		// one extra byte lets us tell "exactly at the limit" from "over the limit"
		s = io.LimitReader(s, maxBytes+1)
	}

	return &PayloadReader{
		IsGzipped:         isGzipped,
		MaxBytes:          maxBytes,
		wrappedBaseStream: baseStream,
		stream:            s,
	}, nil
}

// GetBytesRead returns the total number of bytes read off the original stream
func (pr *PayloadReader) GetBytesRead() int64 {
	return pr.wrappedBaseStream.bytesRead
}

// GetUncompressedBytesRead returns the total number of bytes in the uncompressed stream. This is the
// same as GetBytesRead if the stream is not compressed.
func (pr *PayloadReader) GetUncompressedBytesRead() int64 {
	return pr.uncompressedBytesRead
}

func (pr *PayloadReader) Read(p []byte) (int, error) {
	n, err := pr.stream.Read(p)
	pr.uncompressedBytesRead += int64(n)
	if pr.MaxBytes >= 0 && pr.uncompressedBytesRead > pr.MaxBytes {
		excess := int(pr.uncompressedBytesRead - pr.MaxBytes)
		pr.uncompressedBytesRead = pr.MaxBytes
		_ = pr.Close()
		return n - excess, ErrPayloadTooLarge
	}
	return n, err
}

// Close closes the original stream.
func (pr *PayloadReader) Close() error {
	if c, ok := pr.wrappedBaseStream.baseStream.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// a simple reader decorator that keeps a running total of bytes
type byteCountingReader struct {
	baseStream io.Reader
	bytesRead  int64
}

func (bt *byteCountingReader) Read(p []byte) (int, error) {
	n, err := bt.baseStream.Read(p)
	bt.bytesRead += int64(n)
	return n, err
}
