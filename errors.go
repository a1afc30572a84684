package converse

import (
	"fmt"
	"strconv"
	"time"
)

// ErrLLM reports a failure inside the LLM backend: malformed responses,
// exhausted context windows, or an unreachable model process. Generation
// failures are terminal for a turn; no partial reply is meaningful.
type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrHTTP reports a non-200 response from an HTTP-backed adapter.
// RetryAfter carries the parsed Retry-After header, if present, so retry
// middleware can honor server-directed backoff.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ParseRetryAfter parses a Retry-After header value (delta-seconds or HTTP
// date) into a duration. Returns 0 for empty or unparseable values.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http1123Time(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func http1123Time(v string) (time.Time, error) {
	return time.Parse(time.RFC1123, v)
}
