package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kyudori/er-scout/external/bser"
	"github.com/kyudori/er-scout/internal/domain/player"
	"github.com/kyudori/er-scout/internal/domain/scoring"
	"github.com/kyudori/er-scout/internal/domain/synergy"
	"github.com/kyudori/er-scout/internal/platform/cache"
	"github.com/kyudori/er-scout/internal/platform/logging"
)

const (
	// RankedMode is the matching-mode code for ranked squad play.
	RankedMode = 3

	// RecentMatchWindow is how much history a standard evaluation pulls.
	RecentMatchWindow = 20

	// PortraitMatchWindow is the wider history window used by the
	// self-portrait flow, which also feeds the synergy analyzer.
	PortraitMatchWindow = 50
)

// StatsProvider is the upstream surface the services consume. Satisfied
// by *bser.Client.
type StatsProvider interface {
	ResolveIdentity(ctx context.Context, nickname string) (player.Identity, bool, error)
	FetchRecentMatches(ctx context.Context, id string, limit int) ([]player.Match, error)
	FetchSeasonStats(ctx context.Context, id string, seasonID int64, mode int) (player.SeasonStats, bool, error)
	FetchCurrentSeason(ctx context.Context) (int64, error)
}

// OutcomeRecorder counts terminal evaluation outcomes. May be nil.
type OutcomeRecorder interface {
	EvaluationOutcome(status string)
}

type EvaluationStatus string

const (
	StatusScored             EvaluationStatus = "scored"
	StatusInsufficientSample EvaluationStatus = "insufficient_sample"
	StatusNotFound           EvaluationStatus = "not_found"
	StatusNoHistory          EvaluationStatus = "no_history"
	StatusError              EvaluationStatus = "error"
)

// Evaluation is the tagged result of one evaluate call. Exactly one
// status is set; error statuses carry kind and message instead of score
// fields.
type Evaluation struct {
	Status   EvaluationStatus
	Nickname string
	UserID   string

	Score      int
	Tier       scoring.Tier
	Strengths  []string
	MajorRisks []string
	MinorRisks []string

	TotalGames  int
	RecentGames int
	MostPlayed  *player.CharacterUsage

	Warning   string
	ErrorKind string
	Message   string
}

type EvaluationService struct {
	provider StatsProvider
	cache    *cache.Store
	logger   *logging.Logger
	outcomes OutcomeRecorder
}

func NewEvaluationService(provider StatsProvider, store *cache.Store, logger *logging.Logger, outcomes OutcomeRecorder) *EvaluationService {
	if logger == nil {
		logger = logging.Default()
	}
	return &EvaluationService{
		provider: provider,
		cache:    store,
		logger:   logger,
		outcomes: outcomes,
	}
}

// Evaluate runs the full pipeline for one nickname. Failures become
// tagged results; this method never returns an error to the caller.
func (s *EvaluationService) Evaluate(ctx context.Context, nickname string) Evaluation {
	ctx, span := startUsecaseSpan(ctx, "EvaluationService.Evaluate")
	defer span.End()

	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return s.record(Evaluation{
			Status:    StatusNotFound,
			ErrorKind: "not_found",
			Message:   "nickname is empty",
		})
	}

	identity, err := s.resolveIdentity(ctx, nickname)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.record(Evaluation{
				Status:    StatusNotFound,
				Nickname:  nickname,
				ErrorKind: "not_found",
				Message:   fmt.Sprintf("nickname %q does not resolve", nickname),
			})
		}
		return s.record(s.errored(ctx, nickname, "", err))
	}

	matches, err := s.recentMatches(ctx, identity.UserID, RecentMatchWindow)
	if err != nil {
		return s.record(s.errored(ctx, identity.Nickname, identity.UserID, err))
	}
	if len(matches) == 0 {
		return s.record(Evaluation{
			Status:    StatusNoHistory,
			Nickname:  identity.Nickname,
			UserID:    identity.UserID,
			ErrorKind: "no_history",
			Message:   "no recent matches on record",
		})
	}

	seasonID, err := s.currentSeason(ctx, matches)
	if err != nil {
		return s.record(s.errored(ctx, identity.Nickname, identity.UserID, err))
	}

	stats, ok, err := s.seasonStats(ctx, identity.UserID, seasonID)
	if err != nil {
		return s.record(s.errored(ctx, identity.Nickname, identity.UserID, err))
	}

	mostPlayed := mostPlayedOf(matches)
	if !ok || stats.TotalGames < scoring.MinScoredGames {
		return s.record(Evaluation{
			Status:      StatusInsufficientSample,
			Nickname:    identity.Nickname,
			UserID:      identity.UserID,
			TotalGames:  stats.TotalGames,
			RecentGames: len(matches),
			MostPlayed:  mostPlayed,
			Warning: fmt.Sprintf("only %d ranked games this season, at least %d needed for a stable score",
				stats.TotalGames, scoring.MinScoredGames),
		})
	}

	result := scoring.Score(scoring.Input{Stats: stats, Recent: matches})
	return s.record(Evaluation{
		Status:      StatusScored,
		Nickname:    identity.Nickname,
		UserID:      identity.UserID,
		Score:       result.Score,
		Tier:        result.Tier,
		Strengths:   result.Strengths,
		MajorRisks:  result.MajorRisks,
		MinorRisks:  result.MinorRisks,
		TotalGames:  stats.TotalGames,
		RecentGames: len(matches),
		MostPlayed:  mostPlayed,
	})
}

// EvaluateSynergy aggregates per-teammate-character performance over
// the wider portrait window.
func (s *EvaluationService) EvaluateSynergy(ctx context.Context, nickname string) ([]synergy.Entry, error) {
	ctx, span := startUsecaseSpan(ctx, "EvaluationService.EvaluateSynergy")
	defer span.End()

	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, fmt.Errorf("%w: nickname is empty", ErrInvalidInput)
	}

	identity, err := s.resolveIdentity(ctx, nickname)
	if err != nil {
		return nil, err
	}
	matches, err := s.recentMatches(ctx, identity.UserID, PortraitMatchWindow)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: nickname=%s", ErrNoHistory, identity.Nickname)
	}
	return synergy.Aggregate(identity.UserID, matches), nil
}

func (s *EvaluationService) resolveIdentity(ctx context.Context, nickname string) (player.Identity, error) {
	key := "identity:" + nickname
	value, err := s.cache.GetOrLoad(ctx, key, func(ctx context.Context) (any, error) {
		identity, ok, err := s.provider.ResolveIdentity(ctx, nickname)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: nickname=%s", ErrNotFound, nickname)
		}
		return identity, nil
	})
	if err != nil {
		return player.Identity{}, err
	}
	identity, ok := value.(player.Identity)
	if !ok {
		return player.Identity{}, fmt.Errorf("unexpected cached identity type %T", value)
	}
	return identity, nil
}

func (s *EvaluationService) recentMatches(ctx context.Context, id string, limit int) ([]player.Match, error) {
	key := fmt.Sprintf("matches:%s:%d", id, limit)
	value, err := s.cache.GetOrLoad(ctx, key, func(ctx context.Context) (any, error) {
		return s.provider.FetchRecentMatches(ctx, id, limit)
	})
	if err != nil {
		return nil, err
	}
	matches, ok := value.([]player.Match)
	if !ok {
		return nil, fmt.Errorf("unexpected cached match list type %T", value)
	}
	return matches, nil
}

func (s *EvaluationService) seasonStats(ctx context.Context, id string, seasonID int64) (player.SeasonStats, bool, error) {
	key := fmt.Sprintf("stats:%s:%d:%d", id, seasonID, RankedMode)
	value, err := s.cache.GetOrLoad(ctx, key, func(ctx context.Context) (any, error) {
		stats, ok, err := s.provider.FetchSeasonStats(ctx, id, seasonID, RankedMode)
		if err != nil {
			return nil, err
		}
		return cachedStats{Stats: stats, Present: ok}, nil
	})
	if err != nil {
		return player.SeasonStats{}, false, err
	}
	cached, ok := value.(cachedStats)
	if !ok {
		return player.SeasonStats{}, false, fmt.Errorf("unexpected cached stats type %T", value)
	}
	return cached.Stats, cached.Present, nil
}

// currentSeason infers the season from match history on every call.
// The upstream season endpoint is strictly a fallback for histories
// that carry no season id at all.
func (s *EvaluationService) currentSeason(ctx context.Context, matches []player.Match) (int64, error) {
	if seasonID, ok := player.InferSeasonID(matches); ok {
		return seasonID, nil
	}

	value, err := s.cache.GetOrLoad(ctx, "season:current", func(ctx context.Context) (any, error) {
		return s.provider.FetchCurrentSeason(ctx)
	})
	if err != nil {
		return 0, err
	}
	seasonID, ok := value.(int64)
	if !ok || seasonID <= 0 {
		return 0, fmt.Errorf("unresolvable season id")
	}
	return seasonID, nil
}

func (s *EvaluationService) errored(ctx context.Context, nickname, userID string, err error) Evaluation {
	kind := classifyError(err)
	s.logger.WarnContext(ctx, "evaluation failed", "nickname", nickname, "kind", kind, "error", err)
	return Evaluation{
		Status:    StatusError,
		Nickname:  nickname,
		UserID:    userID,
		ErrorKind: kind,
		Message:   err.Error(),
	}
}

func (s *EvaluationService) record(e Evaluation) Evaluation {
	if s.outcomes != nil {
		s.outcomes.EvaluationOutcome(string(e.Status))
	}
	return e
}

type cachedStats struct {
	Stats   player.SeasonStats
	Present bool
}

func classifyError(err error) string {
	switch {
	case errors.Is(err, bser.ErrMissingCredential):
		return "auth"
	case errors.Is(err, bser.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, bser.ErrUpstreamLogic):
		return "upstream"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "transient"
	}
}

func mostPlayedOf(matches []player.Match) *player.CharacterUsage {
	usage, ok := player.MostPlayedCharacter(matches)
	if !ok {
		return nil
	}
	return &usage
}
