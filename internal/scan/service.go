package scan

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Runner is the pipeline surface the service drives.
type Runner interface {
	Run(ctx context.Context, ownerID uuid.UUID, maxResults int) (Result, error)
}

// Service serializes scan cycles per owner. Concurrent cycles for the same
// owner are unsafe (double token refresh, cursor regression), so concurrent
// triggers coalesce into a single in-flight cycle whose result they share.
// Different owners run independently.
type Service struct {
	runner Runner
	group  singleflight.Group
}

// NewService wraps a pipeline in per-owner serialization.
func NewService(runner Runner) *Service {
	return &Service{runner: runner}
}

// Scan runs (or joins) the owner's scan cycle. A caller that joins an
// in-flight cycle shares its result; its own maxResults is not applied.
func (s *Service) Scan(ctx context.Context, ownerID uuid.UUID, maxResults int) (Result, error) {
	v, err, _ := s.group.Do(ownerID.String(), func() (any, error) {
		return s.runner.Run(ctx, ownerID, maxResults)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}
