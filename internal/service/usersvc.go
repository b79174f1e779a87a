package service

import (
	"context"
	"strings"

	"netpulseserver/internal/domain"
)

const searchResultLimit = 20

type UsersSearchStore interface {
	SearchUsers(ctx context.Context, q string, limit int, searcherID string) ([]domain.SearchResult, error)
}

// UsersService answers directory lookups: username search for the
// add-friends screen and single-user reads for the REST surface.
type UsersService struct {
	Store UsersSearchStore
	Users UsersStore
}

func (s *UsersService) GetByID(ctx context.Context, id string) (domain.User, error) {
	return s.Users.GetUserByID(ctx, id)
}

func (s *UsersService) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	return s.Users.GetUserByUsername(ctx, username)
}

// Search returns up to 20 users whose names contain the query, excluding
// the searcher. Each hit carries the friendship state relative to the
// searcher so the client can render the right action.
func (s *UsersService) Search(ctx context.Context, userID, query string) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < 2 {
		return nil, domain.NewValidationError(map[string]string{"query": "must be at least 2 characters"})
	}
	results, err := s.Store.SearchUsers(ctx, query, searchResultLimit, userID)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []domain.SearchResult{}
	}
	return results, nil
}
