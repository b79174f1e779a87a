package service

import (
	"context"
	"time"

	"netpulseserver/internal/domain"
	"netpulseserver/internal/wire"
)

type AchievementsStore interface {
	// ListByMetric returns the family's rules ordered by ascending
	// threshold.
	ListByMetric(ctx context.Context, metric domain.AchievementMetric) ([]domain.Achievement, error)
	ListStatusForUser(ctx context.Context, userID string) ([]domain.AchievementStatus, error)
	// Grant reports whether the achievement is newly earned; an existing
	// row makes it a no-op.
	Grant(ctx context.Context, userID, achievementID string, when time.Time) (bool, error)
	CountEarned(ctx context.Context, userID string) (int, error)
}

// FriendCounter reports how many accepted friendships a user has.
type FriendCounter interface {
	CountAccepted(ctx context.Context, userID string) (int, error)
}

// AchievementsService checks the static catalog against user counters and
// grants whatever is newly due. It implements the evaluator interfaces the
// friends and sessions services call after mutating those counters.
type AchievementsService struct {
	Achievements AchievementsStore
	Users        UsersStore
	Friends      FriendCounter
	Notifier     Notifier
	Now          func() time.Time
}

func (s *AchievementsService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// EvaluateSessions re-checks the session-count family against the user's
// completed-session counter.
func (s *AchievementsService) EvaluateSessions(ctx context.Context, userID string) error {
	u, err := s.Users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	return s.evaluate(ctx, userID, domain.MetricSessions, u.TotalSessions)
}

// EvaluateTime re-checks the accumulated-time family.
func (s *AchievementsService) EvaluateTime(ctx context.Context, userID string) error {
	u, err := s.Users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	return s.evaluate(ctx, userID, domain.MetricTimeSeconds, u.TotalTimeSeconds)
}

// EvaluateFriends re-checks the friend-count family.
func (s *AchievementsService) EvaluateFriends(ctx context.Context, userID string) error {
	count, err := s.Friends.CountAccepted(ctx, userID)
	if err != nil {
		return err
	}
	return s.evaluate(ctx, userID, domain.MetricFriends, count)
}

// evaluate grants every rule of the family whose threshold the current
// value meets. Grant only reports true for a new row, so each achievement
// is announced exactly once no matter how often the evaluators run.
func (s *AchievementsService) evaluate(ctx context.Context, userID string, metric domain.AchievementMetric, value int) error {
	rules, err := s.Achievements.ListByMetric(ctx, metric)
	if err != nil {
		return err
	}
	for _, rule := range rules {
		if value < rule.Threshold {
			break
		}
		granted, err := s.Achievements.Grant(ctx, userID, rule.ID, s.now())
		if err != nil {
			return err
		}
		if !granted {
			continue
		}
		s.Notifier.ToUser(ctx, userID, wire.Event{
			Type: wire.TypeAchievementEarned,
			Data: wire.AchievementEarnedData{
				Key:         rule.Key,
				Name:        rule.Name,
				Description: rule.Description,
			},
		})
	}
	return nil
}

// ListForUser returns the full catalog annotated with the user's progress.
func (s *AchievementsService) ListForUser(ctx context.Context, userID string) ([]domain.AchievementStatus, error) {
	list, err := s.Achievements.ListStatusForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []domain.AchievementStatus{}
	}
	return list, nil
}

// Profile assembles the public profile: counters straight off the user row
// plus the earned-achievement and friend tallies.
func (s *AchievementsService) Profile(ctx context.Context, userID string) (domain.Profile, error) {
	u, err := s.Users.GetUserByID(ctx, userID)
	if err != nil {
		return domain.Profile{}, err
	}
	earned, err := s.Achievements.CountEarned(ctx, userID)
	if err != nil {
		return domain.Profile{}, err
	}
	friends, err := s.Friends.CountAccepted(ctx, userID)
	if err != nil {
		return domain.Profile{}, err
	}
	return domain.Profile{
		UserID:            u.ID,
		Username:          u.Username,
		Status:            u.Status,
		TotalSessions:     u.TotalSessions,
		TotalTimeSeconds:  u.TotalTimeSeconds,
		AchievementsCount: earned,
		FriendsCount:      friends,
		CreatedAt:         u.CreatedAt,
	}, nil
}
