package llm

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// ErrStopStream can be returned from an SSE handler to end reading early
// without an error.
var ErrStopStream = errors.New("stop stream")

// ReadSSE parses a text/event-stream body and calls fn for every event with
// its event name (may be empty) and data payload.
func ReadSSE(r io.Reader, fn func(event, data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		event string
		data  []string
	)
	dispatch := func() error {
		if len(data) == 0 {
			event = ""
			return nil
		}
		err := fn(event, strings.Join(data, "\n"))
		event, data = "", data[:0]
		return err
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := dispatch(); err != nil {
				return stopOrErr(err)
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return stopOrErr(dispatch())
}

func stopOrErr(err error) error {
	if errors.Is(err, ErrStopStream) {
		return nil
	}
	return err
}
