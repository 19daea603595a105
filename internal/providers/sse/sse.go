// Package sse reads newline-delimited "data:" event streams as sent by
// OpenAI-compatible chat completion endpoints.
package sse

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/mwiater/pagesmith/internal/apperr"
	"github.com/mwiater/pagesmith/internal/logging"
)

// maxLineBytes bounds a single event line.
const maxLineBytes = 4 << 20

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// ErrMalformed is returned (possibly wrapped) by a handler to report a payload it
// could not decode. Such lines are skipped and never fail the stream.
var ErrMalformed = errors.New("sse: malformed payload")

// ErrTruncated is wrapped by the Transport error returned when the body ends
// before "data: [DONE]".
var ErrTruncated = errors.New("sse: stream ended before [DONE]")

// Read scans body line by line and calls handle with the payload of every data
// line until "data: [DONE]". End of input without that marker is a Transport
// error wrapping ErrTruncated. Comments, blank lines and non-data
// fields are skipped. ctx is checked before and after every read; once it is
// cancelled Read returns an Aborted error without calling handle again.
func Read(ctx context.Context, provider string, body io.Reader, handle func(data []byte) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for {
		if err := apperr.FromContext(ctx, provider); err != nil {
			return err
		}
		if !scanner.Scan() {
			break
		}
		if err := apperr.FromContext(ctx, provider); err != nil {
			return err
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == ':' || !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		data := bytes.TrimSpace(bytes.TrimPrefix(line, dataPrefix))
		if bytes.Equal(data, doneMarker) {
			return nil
		}

		if err := handle(data); err != nil {
			if errors.Is(err, ErrMalformed) {
				logging.LogEvent("%s: skipping malformed stream line: %v", provider, err)
				continue
			}
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		if ctxErr := apperr.FromContext(ctx, provider); ctxErr != nil {
			return ctxErr
		}
		return apperr.Transport(provider, 0, "", err)
	}
	if err := apperr.FromContext(ctx, provider); err != nil {
		return err
	}
	return apperr.Transport(provider, 0, "", ErrTruncated)
}
