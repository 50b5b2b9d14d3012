package usecase

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/kyudori/er-scout/external/bser"
	"github.com/kyudori/er-scout/internal/domain/player"
	"github.com/kyudori/er-scout/internal/platform/cache"
	"github.com/kyudori/er-scout/internal/platform/logging"
)

type stubProvider struct {
	identity    player.Identity
	identityOK  bool
	identityErr error

	matches    []player.Match
	matchesErr error

	stats    player.SeasonStats
	statsOK  bool
	statsErr error

	season    int64
	seasonErr error

	identityCalls atomic.Int32
	matchesCalls  atomic.Int32
	statsCalls    atomic.Int32
	seasonCalls   atomic.Int32
}

func (p *stubProvider) ResolveIdentity(context.Context, string) (player.Identity, bool, error) {
	p.identityCalls.Add(1)
	return p.identity, p.identityOK, p.identityErr
}

func (p *stubProvider) FetchRecentMatches(_ context.Context, _ string, limit int) ([]player.Match, error) {
	p.matchesCalls.Add(1)
	if p.matchesErr != nil {
		return nil, p.matchesErr
	}
	if limit > 0 && len(p.matches) > limit {
		return p.matches[:limit], nil
	}
	return p.matches, nil
}

func (p *stubProvider) FetchSeasonStats(context.Context, string, int64, int) (player.SeasonStats, bool, error) {
	p.statsCalls.Add(1)
	return p.stats, p.statsOK, p.statsErr
}

func (p *stubProvider) FetchCurrentSeason(context.Context) (int64, error) {
	p.seasonCalls.Add(1)
	return p.season, p.seasonErr
}

func rankedMatches(n int, seasonID int64) []player.Match {
	out := make([]player.Match, n)
	for i := range out {
		out[i] = player.Match{
			GameID:         int64(i + 1),
			SeasonID:       seasonID,
			CharacterID:    14,
			Rank:           3,
			DamageToPlayer: 12000,
			MatchingMode:   RankedMode,
		}
	}
	return out
}

func strongStats() player.SeasonStats {
	return player.SeasonStats{
		TotalGames:  100,
		Wins:        20,
		Top3Rate:    0.55,
		AverageRank: 3.8,
		CharacterUsage: []player.CharacterUsage{
			{CharacterID: 14, GamesPlayed: 45},
		},
	}
}

func newService(p *stubProvider) *EvaluationService {
	return NewEvaluationService(p, cache.NewStore(5*time.Minute), logging.NewNop(), nil)
}

func TestEvaluate_ScoredPath(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		identity:   player.Identity{Nickname: "Someone", UserID: "uid-1"},
		identityOK: true,
		matches:    rankedMatches(20, 27),
		stats:      strongStats(),
		statsOK:    true,
	}

	got := newService(provider).Evaluate(context.Background(), "Someone")
	if got.Status != StatusScored {
		t.Fatalf("status = %s (%s), want scored", got.Status, got.Message)
	}
	if got.Score < 70 || got.Tier != "purple" {
		t.Fatalf("score/tier = %d/%s, want a purple score", got.Score, got.Tier)
	}
	if got.TotalGames != 100 || got.RecentGames != 20 {
		t.Fatalf("counts = %d/%d, want 100/20", got.TotalGames, got.RecentGames)
	}
	if got.MostPlayed == nil || got.MostPlayed.CharacterID != 14 {
		t.Fatalf("most played = %+v, want character 14", got.MostPlayed)
	}
	// Season comes from match history, never the fallback endpoint.
	if provider.seasonCalls.Load() != 0 {
		t.Fatal("season fallback endpoint was called despite season ids in history")
	}
}

func TestEvaluate_InsufficientSample(t *testing.T) {
	t.Parallel()

	stats := strongStats()
	stats.TotalGames = 30
	provider := &stubProvider{
		identity:   player.Identity{Nickname: "Someone", UserID: "uid-1"},
		identityOK: true,
		matches:    rankedMatches(20, 27),
		stats:      stats,
		statsOK:    true,
	}

	got := newService(provider).Evaluate(context.Background(), "Someone")
	if got.Status != StatusInsufficientSample {
		t.Fatalf("status = %s, want insufficient_sample", got.Status)
	}
	if got.Score != 0 || got.Tier != "" {
		t.Fatalf("partial result carries score fields: %+v", got)
	}
	if got.TotalGames != 30 || got.RecentGames != 20 {
		t.Fatalf("counts = %d/%d, want 30/20", got.TotalGames, got.RecentGames)
	}
	if got.Warning == "" {
		t.Fatal("insufficient sample result has no warning")
	}
}

func TestEvaluate_ZeroGamesNeverReachScoring(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		identity:   player.Identity{Nickname: "Someone", UserID: "uid-1"},
		identityOK: true,
		matches:    rankedMatches(5, 27),
		stats:      player.SeasonStats{TotalGames: 0},
		statsOK:    true,
	}

	got := newService(provider).Evaluate(context.Background(), "Someone")
	if got.Status != StatusInsufficientSample {
		t.Fatalf("status = %s, want insufficient_sample", got.Status)
	}
}

func TestEvaluate_MissingStatsRecord(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		identity:   player.Identity{Nickname: "Someone", UserID: "uid-1"},
		identityOK: true,
		matches:    rankedMatches(5, 27),
		statsOK:    false,
	}

	got := newService(provider).Evaluate(context.Background(), "Someone")
	if got.Status != StatusInsufficientSample {
		t.Fatalf("status = %s, want insufficient_sample for an absent stats record", got.Status)
	}
}

func TestEvaluate_NotFound(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{identityOK: false}
	got := newService(provider).Evaluate(context.Background(), "ghost")
	if got.Status != StatusNotFound {
		t.Fatalf("status = %s, want not_found", got.Status)
	}
	if got.ErrorKind != "not_found" {
		t.Fatalf("kind = %s, want not_found", got.ErrorKind)
	}
}

func TestEvaluate_EmptyNicknameSkipsNetwork(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{}
	got := newService(provider).Evaluate(context.Background(), "   ")
	if got.Status != StatusNotFound {
		t.Fatalf("status = %s, want not_found", got.Status)
	}
	if provider.identityCalls.Load() != 0 {
		t.Fatal("empty nickname still hit the resolver")
	}
}

func TestEvaluate_NoHistory(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		identity:   player.Identity{Nickname: "Someone", UserID: "uid-1"},
		identityOK: true,
		matches:    []player.Match{},
	}

	got := newService(provider).Evaluate(context.Background(), "Someone")
	if got.Status != StatusNoHistory {
		t.Fatalf("status = %s, want no_history", got.Status)
	}
}

func TestEvaluate_SeasonFallbackWhenHistoryHasNoSeason(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		identity:   player.Identity{Nickname: "Someone", UserID: "uid-1"},
		identityOK: true,
		matches:    rankedMatches(10, 0),
		stats:      strongStats(),
		statsOK:    true,
		season:     27,
	}

	got := newService(provider).Evaluate(context.Background(), "Someone")
	if got.Status != StatusScored {
		t.Fatalf("status = %s (%s), want scored via season fallback", got.Status, got.Message)
	}
	if provider.seasonCalls.Load() != 1 {
		t.Fatalf("season fallback calls = %d, want 1", provider.seasonCalls.Load())
	}
}

func TestEvaluate_UpstreamErrorsBecomeTaggedResults(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		kind string
	}{
		{"rate limited", crerr.Wrap(bser.ErrRateLimited, "status=429"), "rate_limited"},
		{"auth", bser.ErrMissingCredential, "auth"},
		{"logical", &bser.LogicError{Code: 500, Message: "oops"}, "upstream"},
		{"transient", crerr.Wrap(bser.ErrTransient, "status=503"), "transient"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			provider := &stubProvider{identityErr: tc.err}
			got := newService(provider).Evaluate(context.Background(), "Someone")
			if got.Status != StatusError {
				t.Fatalf("status = %s, want error", got.Status)
			}
			if got.ErrorKind != tc.kind {
				t.Fatalf("kind = %s, want %s", got.ErrorKind, tc.kind)
			}
			if got.Message == "" {
				t.Fatal("error result has no message")
			}
		})
	}
}

func TestEvaluate_SecondCallServedFromCache(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		identity:   player.Identity{Nickname: "Someone", UserID: "uid-1"},
		identityOK: true,
		matches:    rankedMatches(20, 27),
		stats:      strongStats(),
		statsOK:    true,
	}
	service := newService(provider)

	first := service.Evaluate(context.Background(), "Someone")
	second := service.Evaluate(context.Background(), "Someone")
	if first.Status != StatusScored || second.Status != StatusScored {
		t.Fatalf("statuses = %s/%s, want scored twice", first.Status, second.Status)
	}

	if got := provider.identityCalls.Load(); got != 1 {
		t.Fatalf("identity calls = %d, want 1", got)
	}
	if got := provider.matchesCalls.Load(); got != 1 {
		t.Fatalf("match calls = %d, want 1", got)
	}
	if got := provider.statsCalls.Load(); got != 1 {
		t.Fatalf("stats calls = %d, want 1", got)
	}
}

func TestEvaluate_FailedFetchIsNotCached(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		identity:    player.Identity{Nickname: "Someone", UserID: "uid-1"},
		identityOK:  true,
		identityErr: crerr.Wrap(bser.ErrTransient, "down"),
	}
	service := newService(provider)

	if got := service.Evaluate(context.Background(), "Someone"); got.Status != StatusError {
		t.Fatalf("status = %s, want error", got.Status)
	}

	provider.identityErr = nil
	provider.matches = rankedMatches(20, 27)
	provider.stats = strongStats()
	provider.statsOK = true

	if got := service.Evaluate(context.Background(), "Someone"); got.Status != StatusScored {
		t.Fatalf("status after recovery = %s, want scored", got.Status)
	}
	if got := provider.identityCalls.Load(); got != 2 {
		t.Fatalf("identity calls = %d, want a retry after the failed fetch", got)
	}
}

func TestEvaluateSynergy_FiltersByThreshold(t *testing.T) {
	t.Parallel()

	matches := make([]player.Match, 0, 8)
	for i := 0; i < 6; i++ {
		matches = append(matches, player.Match{
			SeasonID: 27,
			Rank:     2,
			Teammates: []player.TeammateRef{
				{CharacterID: 7, UserID: "mate-1"},
			},
		})
	}
	matches = append(matches, player.Match{
		SeasonID:  27,
		Rank:      4,
		Teammates: []player.TeammateRef{{CharacterID: 9, UserID: "mate-2"}},
	})

	provider := &stubProvider{
		identity:   player.Identity{Nickname: "Someone", UserID: "uid-1"},
		identityOK: true,
		matches:    matches,
	}

	entries, err := newService(provider).EvaluateSynergy(context.Background(), "Someone")
	if err != nil {
		t.Fatalf("EvaluateSynergy error: %v", err)
	}
	if len(entries) != 1 || entries[0].CharacterID != 7 {
		t.Fatalf("entries = %+v, want only character 7", entries)
	}
}
