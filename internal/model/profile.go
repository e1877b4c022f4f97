package model

import "slices"

// Profile is a user's local profile, created on first contact from the external
// profile source and then mutated by whichever endpoint owns each concern.
type Profile struct {
	UserID            string          `json:"user_id"`
	Level             int             `json:"level"`
	Username          string          `json:"username"`
	DisplayName       string          `json:"display_name"`
	Avatar            string          `json:"avatar"`
	Email             string          `json:"email"`
	Bio               string          `json:"bio"`
	Location          string          `json:"location"`
	Website           string          `json:"website"`
	JoinedDate        int64           `json:"joined_date"`
	Settings          ProfileSettings `json:"settings"`
	Stats             ProfileStats    `json:"stats"`
	Roles             []string        `json:"roles"`
	LastProfileUpdate int64           `json:"last_profile_update"`

	MemberPlatforms   []string         `json:"memberPlatforms,omitempty"`
	RewardedPlatforms []string         `json:"rewardedPlatforms,omitempty"`
	CompletedTasks    []string         `json:"completedTasks,omitempty"`
	SkippedTasks      []string         `json:"skippedTasks,omitempty"`
	TaskStats         *TaskStats       `json:"taskStats,omitempty"`
	AdViews           map[string]int64 `json:"adViews,omitempty"`
}

type ProfileSettings struct {
	Notifications bool   `json:"notifications"`
	Theme         string `json:"theme"`
}

type ProfileStats struct {
	TotalAdsViewed        int   `json:"total_ads_viewed"`
	TotalSurveysCompleted int   `json:"total_surveys_completed"`
	TotalEarned           int64 `json:"total_earned"`
}

type TaskStats struct {
	TotalCompleted int            `json:"totalCompleted"`
	ByCategory     map[string]int `json:"byCategory"`
}

// NewTaskStats returns stats with every known category at zero.
func NewTaskStats() *TaskStats {
	return &TaskStats{ByCategory: map[string]int{
		CategoryFollows:     0,
		CategoryEngagements: 0,
		CategoryOther:       0,
	}}
}

// IsMember reports whether the user has joined platform.
func (p *Profile) IsMember(platform string) bool {
	return slices.Contains(p.MemberPlatforms, platform)
}

// HasCompleted reports whether taskID is in the completed set.
func (p *Profile) HasCompleted(taskID string) bool {
	return slices.Contains(p.CompletedTasks, taskID)
}

// HasSkipped reports whether taskID is in the skipped set.
func (p *Profile) HasSkipped(taskID string) bool {
	return slices.Contains(p.SkippedTasks, taskID)
}

// TaskAction is what a user did with a task.
type TaskAction int

const (
	ActionComplete TaskAction = iota + 1
	ActionSkip
)

// ParseTaskAction maps the wire value to a TaskAction.
func ParseTaskAction(s string) (TaskAction, bool) {
	switch s {
	case "complete":
		return ActionComplete, true
	case "skip":
		return ActionSkip, true
	default:
		return 0, false
	}
}

func (a TaskAction) String() string {
	switch a {
	case ActionComplete:
		return "complete"
	case ActionSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// ResetAction selects which task progress a reset clears.
type ResetAction int

const (
	ResetCompleted ResetAction = iota + 1
	ResetSkipped
	ResetAll
)

// ParseResetAction maps the wire value to a ResetAction.
func ParseResetAction(s string) (ResetAction, bool) {
	switch s {
	case "reset_completed":
		return ResetCompleted, true
	case "reset_skipped":
		return ResetSkipped, true
	case "reset_all":
		return ResetAll, true
	default:
		return 0, false
	}
}
