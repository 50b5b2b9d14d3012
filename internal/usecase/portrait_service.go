package usecase

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sourcegraph/conc"

	"github.com/kyudori/er-scout/internal/domain/player"
	"github.com/kyudori/er-scout/internal/domain/synergy"
	"github.com/kyudori/er-scout/internal/platform/logging"
)

// Reference anchors for the portrait percent bars. A season average at
// the anchor reads as 100%.
const (
	portraitRankAnchor   = 3.2
	portraitDamageAnchor = 18000.0
	portraitKillAnchor   = 12.0

	portraitRecentWindow = 10
)

// Portrait is the extended self-evaluation: the standard evaluation
// plus season percent bars and teammate synergy views.
type Portrait struct {
	Evaluation Evaluation

	WindowGames   int
	RecentAvgRank float64

	RankPct   int
	DamagePct int
	KillPct   int

	Synergy synergy.Views
}

type PortraitService struct {
	evaluations *EvaluationService
	logger      *logging.Logger
}

func NewPortraitService(evaluations *EvaluationService, logger *logging.Logger) *PortraitService {
	if logger == nil {
		logger = logging.Default()
	}
	return &PortraitService{evaluations: evaluations, logger: logger}
}

// Build assembles the portrait over the wider match window. Season
// stats and synergy aggregation run concurrently; both read the same
// already-fetched history.
func (s *PortraitService) Build(ctx context.Context, nickname string) (Portrait, error) {
	ctx, span := startUsecaseSpan(ctx, "PortraitService.Build")
	defer span.End()

	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return Portrait{}, fmt.Errorf("%w: nickname is empty", ErrInvalidInput)
	}

	identity, err := s.evaluations.resolveIdentity(ctx, nickname)
	if err != nil {
		return Portrait{}, err
	}
	matches, err := s.evaluations.recentMatches(ctx, identity.UserID, PortraitMatchWindow)
	if err != nil {
		return Portrait{}, err
	}
	if len(matches) == 0 {
		return Portrait{}, fmt.Errorf("%w: nickname=%s", ErrNoHistory, identity.Nickname)
	}

	seasonID, err := s.evaluations.currentSeason(ctx, matches)
	if err != nil {
		return Portrait{}, err
	}

	var (
		stats      player.SeasonStats
		statsOK    bool
		statsErr   error
		aggregated []synergy.Entry
	)
	var wg conc.WaitGroup
	wg.Go(func() {
		stats, statsOK, statsErr = s.evaluations.seasonStats(ctx, identity.UserID, seasonID)
	})
	wg.Go(func() {
		aggregated = synergy.Aggregate(identity.UserID, matches)
	})
	wg.Wait()
	if statsErr != nil {
		return Portrait{}, statsErr
	}

	evaluation := s.evaluations.Evaluate(ctx, nickname)

	recentRank, _, _ := player.RecentForm(matches, portraitRecentWindow)
	portrait := Portrait{
		Evaluation:    evaluation,
		WindowGames:   len(matches),
		RecentAvgRank: recentRank,
		Synergy:       synergy.BuildViews(aggregated),
	}
	if statsOK {
		portrait.RankPct = inversePct(stats.AverageRank, portraitRankAnchor)
		portrait.DamagePct = directPct(stats.AverageDamage, portraitDamageAnchor)
		portrait.KillPct = directPct(stats.AverageKill+stats.AverageAssist, portraitKillAnchor)
	}
	return portrait, nil
}

// directPct scales a higher-is-better average against its anchor.
func directPct(value, anchor float64) int {
	if value <= 0 || anchor <= 0 {
		return 0
	}
	return clampPct(math.Round(value / anchor * 100))
}

// inversePct scales a lower-is-better average against its anchor.
func inversePct(value, anchor float64) int {
	if value <= 0 || anchor <= 0 {
		return 0
	}
	return clampPct(math.Round(anchor / value * 100))
}

func clampPct(v float64) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v)
}
