package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/sakif/clickforcharity/internal/model"
	"github.com/sakif/clickforcharity/internal/repository"
)

// RewardPerPlatform is paid once per catalog platform a user joins.
const RewardPerPlatform = 25

// Platform is an entry in the reward catalog.
type Platform struct {
	ID   string
	Name string
}

// Platforms is the catalog of platforms whose membership is rewarded.
var Platforms = []Platform{
	{"odysee", "Odysee"},
	{"publish0x", "Publish0x"},
	{"rumble", "Rumble"},
	{"bitchute", "BitChute"},
	{"minds", "Minds"},
	{"gab", "Gab"},
	{"lbry", "LBRY"},
	{"mastodon", "Mastodon"},
	{"substack", "Substack"},
	{"medium", "Medium"},
}

func platformName(id string) (string, bool) {
	for _, p := range Platforms {
		if p.ID == id {
			return p.Name, true
		}
	}
	return "", false
}

// PlatformService records which external platforms a user belongs to.
type PlatformService struct {
	profiles repository.ProfileRepository
	balances *BalanceService
	reward   int64
	logger   *slog.Logger
}

func NewPlatformService(profiles repository.ProfileRepository, balances *BalanceService, reward int64, logger *slog.Logger) *PlatformService {
	if reward < 0 {
		reward = RewardPerPlatform
	}
	return &PlatformService{
		profiles: profiles,
		balances: balances,
		reward:   reward,
		logger:   logger,
	}
}

// Memberships is a user's platform state.
type Memberships struct {
	MemberPlatforms   []string
	RewardedPlatforms []string
	Reward            int64
	RewardedNames     []string
}

// Get returns the user's current memberships.
func (s *PlatformService) Get(ctx context.Context, userID string) (*Memberships, error) {
	p, err := requireProfile(ctx, s.profiles, userID)
	if err != nil {
		return nil, err
	}
	return &Memberships{
		MemberPlatforms:   orEmpty(p.MemberPlatforms),
		RewardedPlatforms: orEmpty(p.RewardedPlatforms),
		RewardedNames:     []string{},
	}, nil
}

// Update replaces the user's memberships. Every catalog platform in the new
// list that has never been rewarded before pays the platform reward; all of
// them are paid together as a single platform_reward transaction. Leaving and
// rejoining a platform does not pay again.
func (s *PlatformService) Update(ctx context.Context, userID string, platforms []string) (*Memberships, error) {
	p, err := requireProfile(ctx, s.profiles, userID)
	if err != nil {
		return nil, err
	}

	members := make([]string, 0, len(platforms))
	for _, id := range platforms {
		id = strings.TrimSpace(id)
		if id != "" && !slices.Contains(members, id) {
			members = append(members, id)
		}
	}

	var newIDs, names []string
	for _, id := range members {
		name, ok := platformName(id)
		if ok && !slices.Contains(p.RewardedPlatforms, id) {
			newIDs = append(newIDs, id)
			names = append(names, name)
		}
	}
	total := int64(len(newIDs)) * s.reward

	if total > 0 {
		desc := "Platform membership reward: " + strings.Join(names, ", ")
		if _, err := s.balances.credit(ctx, userID, total, model.TxTypePlatformReward, desc); err != nil {
			return nil, err
		}
	}

	updated, err := s.profiles.Update(ctx, userID, func(p *model.Profile) error {
		p.MemberPlatforms = members
		for _, id := range newIDs {
			if !slices.Contains(p.RewardedPlatforms, id) {
				p.RewardedPlatforms = append(p.RewardedPlatforms, id)
			}
		}
		p.Stats.TotalEarned += total
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("service/platform: saving memberships for %s: %w", userID, err)
	}

	if total > 0 {
		s.logger.Info("platform membership rewarded",
			slog.String("user_id", userID),
			slog.String("platforms", strings.Join(newIDs, ",")),
			slog.Int64("reward", total),
		)
	}
	return &Memberships{
		MemberPlatforms:   orEmpty(updated.MemberPlatforms),
		RewardedPlatforms: orEmpty(updated.RewardedPlatforms),
		Reward:            total,
		RewardedNames:     orEmpty(names),
	}, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
