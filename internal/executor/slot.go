package executor

import (
	"context"
	"errors"
	"os"
)

// reportSlot guards the sampling tool's report path. At most one cell
// holds it, and the file is removed on acquire and on release so a cell
// never reads a report left by another.
type reportSlot struct {
	path string
	held chan struct{}
}

func newReportSlot(path string) *reportSlot {
	return &reportSlot{path: path, held: make(chan struct{}, 1)}
}

func (s *reportSlot) acquire(ctx context.Context) error {
	select {
	case s.held <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := s.clear(); err != nil {
		<-s.held
		return err
	}
	return nil
}

func (s *reportSlot) release() error {
	defer func() { <-s.held }()
	return s.clear()
}

func (s *reportSlot) clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
