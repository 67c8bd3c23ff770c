// Package mock provides a recording [assets.Source] for tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/livescript/internal/assets"
)

var _ assets.Source = (*Source)(nil)

// Source serves Bodies by name. Names listed in Errors fail with that error;
// anything else is reported as [assets.ErrNotFound].
type Source struct {
	mu sync.Mutex

	// SourceName is returned by Name. Default: "mock".
	SourceName string

	// Bodies maps asset names to their content.
	Bodies map[string]string

	// Errors maps asset names to a failure returned instead of the body.
	Errors map[string]error

	// FetchCalls records every requested name in order.
	FetchCalls []string
}

// Name implements [assets.Source].
func (s *Source) Name() string {
	if s.SourceName == "" {
		return "mock"
	}
	return s.SourceName
}

// Fetch implements [assets.Source].
func (s *Source) Fetch(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FetchCalls = append(s.FetchCalls, name)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err, ok := s.Errors[name]; ok {
		return "", err
	}
	if body, ok := s.Bodies[name]; ok {
		return body, nil
	}
	return "", fmt.Errorf("mock: %s: %w", name, assets.ErrNotFound)
}

// Calls returns a copy of FetchCalls.
func (s *Source) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.FetchCalls))
	copy(out, s.FetchCalls)
	return out
}
