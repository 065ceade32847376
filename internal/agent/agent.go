// Package agent abstracts the model provider behind a streaming capability so
// the chat coordinator never depends on a concrete SDK.
package agent

import (
	"context"
	"io"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation history sent to the model.
type Message struct {
	Role    Role
	Content string
}

// Request carries everything the model needs for one completion.
type Request struct {
	System   string
	Messages []Message
}

// Stream yields completion text incrementally. Recv returns io.EOF when the
// model is done; any other error means the stream failed mid-flight.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Capability is a model provider that can answer a conversation with a
// streamed completion.
type Capability interface {
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Scripted is a Capability returning canned responses in order. Intended for
// tests.
type Scripted struct {
	Responses []string
	Errs      []error

	// Requests records every request received, in order.
	Requests []Request

	calls int
}

// Stream returns the next scripted response, chunked so callers exercise
// multi-chunk accumulation. A scripted error is returned instead when one is
// queued for this call.
func (s *Scripted) Stream(_ context.Context, req Request) (Stream, error) {
	s.Requests = append(s.Requests, req)
	i := s.calls
	s.calls++

	if i < len(s.Errs) && s.Errs[i] != nil {
		return nil, s.Errs[i]
	}
	if i >= len(s.Responses) {
		return &scriptedStream{}, nil
	}
	return &scriptedStream{chunks: chunk(s.Responses[i], 7)}, nil
}

type scriptedStream struct {
	chunks []string
	pos    int
	err    error
}

func (s *scriptedStream) Recv() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.pos >= len(s.chunks) {
		return "", io.EOF
	}
	out := s.chunks[s.pos]
	s.pos++
	return out, nil
}

func (s *scriptedStream) Close() error { return nil }

func chunk(text string, size int) []string {
	var out []string
	for len(text) > size {
		out = append(out, text[:size])
		text = text[size:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}
