package journals

import "context"

// Reader exposes committed headers.
type Reader interface {
	Get(ctx context.Context, orgID, headerID int64) (Header, error)
	FindBySource(ctx context.Context, orgID int64, sourceType SourceType, sourceID string) (Header, error)
}

// Service answers read-only header lookups.
type Service struct {
	repo Reader
}

func NewService(repo Reader) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, orgID, headerID int64) (Header, error) {
	return s.repo.Get(ctx, orgID, headerID)
}

// BySource returns the header for a source and, when present, its reversal.
func (s *Service) BySource(ctx context.Context, orgID int64, sourceType SourceType, sourceID string) (Header, *Header, error) {
	header, err := s.repo.FindBySource(ctx, orgID, sourceType, sourceID)
	if err != nil {
		return Header{}, nil, err
	}
	if header.ReversedByHeaderID == nil {
		return header, nil, nil
	}
	reversal, err := s.repo.Get(ctx, orgID, *header.ReversedByHeaderID)
	if err != nil {
		return Header{}, nil, err
	}
	return header, &reversal, nil
}
