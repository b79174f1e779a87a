package domain

import "time"

// AchievementMetric names the counter an achievement threshold is checked
// against.
type AchievementMetric string

const (
	MetricSessions    AchievementMetric = "sessions"
	MetricTimeSeconds AchievementMetric = "time_seconds"
	MetricFriends     AchievementMetric = "friends"
)

// Achievement is one row of the static catalog. The catalog is seeded by
// migration and never mutated at runtime.
type Achievement struct {
	ID          string
	Key         string
	Name        string
	Description string
	Metric      AchievementMetric
	Threshold   int
}

type UserAchievement struct {
	UserID        string
	AchievementID string
	EarnedAt      time.Time
}

// AchievementStatus is the catalog annotated with one user's progress.
type AchievementStatus struct {
	ID          string            `json:"id"`
	Key         string            `json:"key"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Metric      AchievementMetric `json:"metric"`
	Threshold   int               `json:"threshold"`
	Earned      bool              `json:"earned"`
	EarnedAt    *time.Time        `json:"earned_at,omitempty"`
}

// Profile aggregates a user's public counters for the profile views.
type Profile struct {
	UserID            string         `json:"user_id"`
	Username          string         `json:"username"`
	Status            PresenceStatus `json:"status"`
	TotalSessions     int            `json:"total_sessions"`
	TotalTimeSeconds  int            `json:"total_time_seconds"`
	AchievementsCount int            `json:"achievements_count"`
	FriendsCount      int            `json:"friends_count"`
	CreatedAt         time.Time      `json:"created_at"`
}
