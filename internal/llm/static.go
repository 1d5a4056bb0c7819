package llm

import (
	"context"
	"sync"
)

// Static answers without a network call. Reply, when set, computes the
// answer; otherwise Response (or Err) is returned. Requests are recorded.
type Static struct {
	Response string
	Err      error
	Reply    func(Request) (string, error)

	mu       sync.Mutex
	requests []Request
}

func (s *Static) ID() string {
	return "static"
}

func (s *Static) Complete(ctx context.Context, request Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.requests = append(s.requests, request)
	s.mu.Unlock()

	if s.Reply != nil {
		return s.Reply(request)
	}
	if s.Err != nil {
		return "", s.Err
	}
	if s.Response == "" {
		return "", ErrEmptyResponse
	}
	return s.Response, nil
}

// Requests returns a copy of everything Complete has seen.
func (s *Static) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}
