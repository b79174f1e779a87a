package service

import (
	"context"
	"time"

	"netpulseserver/internal/domain"
	"netpulseserver/internal/wire"
)

type FriendshipsStore interface {
	CreateRequest(ctx context.Context, userID, friendID string) (domain.Friendship, error)
	AcceptRequest(ctx context.Context, requestID, recipientID string, when time.Time) (domain.Friendship, error)
	DeclineRequest(ctx context.Context, requestID, recipientID string) error
	ListFriends(ctx context.Context, userID string) ([]domain.Friend, error)
	ListIncomingRequests(ctx context.Context, userID string) ([]domain.FriendRequest, error)
	CountAccepted(ctx context.Context, userID string) (int, error)
}

// FriendEvaluator re-checks the friends achievement family after an
// acceptance changes someone's friend count.
type FriendEvaluator interface {
	EvaluateFriends(ctx context.Context, userID string) error
}

type FriendsService struct {
	Users       UsersStore
	Friendships FriendshipsStore
	Notifier    Notifier
	Evaluator   FriendEvaluator
	Now         func() time.Time
}

func (s *FriendsService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// SendRequest creates a pending friendship from one user to another and
// notifies the recipient. Any existing row for the unordered pair, in
// either direction and in either state, is a conflict.
func (s *FriendsService) SendRequest(ctx context.Context, fromID, toID string) (domain.User, error) {
	if toID == "" {
		return domain.User{}, domain.NewValidationError(map[string]string{"friend_id": "required"})
	}
	if fromID == toID {
		return domain.User{}, domain.NewValidationError(map[string]string{"friend_id": "cannot friend yourself"})
	}

	recipient, err := s.Users.GetUserByID(ctx, toID)
	if err != nil {
		return domain.User{}, err
	}
	sender, err := s.Users.GetUserByID(ctx, fromID)
	if err != nil {
		return domain.User{}, err
	}

	f, err := s.Friendships.CreateRequest(ctx, fromID, toID)
	if err != nil {
		return domain.User{}, err
	}

	s.Notifier.ToUser(ctx, toID, wire.Event{
		Type: wire.TypeFriendRequestReceived,
		Data: wire.FriendRequestReceivedData{
			RequestID:    f.ID,
			FromUserID:   sender.ID,
			FromUsername: sender.Username,
		},
	})
	return recipient, nil
}

// Respond resolves a pending request addressed to userID. Accepting
// returns the requester, notifies them, and re-evaluates the friends
// achievement for both sides. Declining deletes the row outright, so the
// pair can try again later; the returned user is zero in that case.
func (s *FriendsService) Respond(ctx context.Context, userID, requestID string, accept bool) (domain.User, error) {
	if requestID == "" {
		return domain.User{}, domain.NewValidationError(map[string]string{"request_id": "required"})
	}

	if !accept {
		if err := s.Friendships.DeclineRequest(ctx, requestID, userID); err != nil {
			return domain.User{}, err
		}
		return domain.User{}, nil
	}

	f, err := s.Friendships.AcceptRequest(ctx, requestID, userID, s.now())
	if err != nil {
		return domain.User{}, err
	}

	requester, err := s.Users.GetUserByID(ctx, f.UserID)
	if err != nil {
		return domain.User{}, err
	}
	accepter, err := s.Users.GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}

	s.Notifier.ToUser(ctx, requester.ID, wire.Event{
		Type: wire.TypeFriendRequestAccepted,
		Data: wire.FriendRequestAcceptedData{UserID: accepter.ID, Username: accepter.Username},
	})

	if s.Evaluator != nil {
		if err := s.Evaluator.EvaluateFriends(ctx, requester.ID); err != nil {
			return domain.User{}, err
		}
		if err := s.Evaluator.EvaluateFriends(ctx, userID); err != nil {
			return domain.User{}, err
		}
	}
	return requester, nil
}

func (s *FriendsService) ListFriends(ctx context.Context, userID string) ([]domain.Friend, error) {
	friends, err := s.Friendships.ListFriends(ctx, userID)
	if err != nil {
		return nil, err
	}
	if friends == nil {
		friends = []domain.Friend{}
	}
	return friends, nil
}

func (s *FriendsService) ListIncomingRequests(ctx context.Context, userID string) ([]domain.FriendRequest, error) {
	requests, err := s.Friendships.ListIncomingRequests(ctx, userID)
	if err != nil {
		return nil, err
	}
	if requests == nil {
		requests = []domain.FriendRequest{}
	}
	return requests, nil
}
