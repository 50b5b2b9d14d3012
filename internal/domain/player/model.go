package player

// Identity is the resolved handle for a player on the upstream platform.
type Identity struct {
	Nickname string
	UserID   string
}

// TeammateRef identifies a squadmate within a single match.
type TeammateRef struct {
	CharacterID int64
	UserID      string
}

// Match is one normalized game record for the subject player.
type Match struct {
	GameID         int64
	SeasonID       int64
	CharacterID    int64
	Rank           int
	DamageToPlayer float64
	MMR            float64
	MatchingMode   int
	Teammates      []TeammateRef
}

// CharacterUsage counts how often a character was played.
type CharacterUsage struct {
	CharacterID int64
	GamesPlayed int
}

// SeasonStats is the aggregated ranked record for one season and mode.
type SeasonStats struct {
	TotalGames     int
	Wins           int
	Top3Rate       float64
	Top5Rate       float64
	Top7Rate       float64
	AverageRank    float64
	AverageDamage  float64
	AverageKill    float64
	AverageAssist  float64
	CharacterUsage []CharacterUsage
}

// WinRate returns wins over total games, or 0 when no games were played.
func (s SeasonStats) WinRate() float64 {
	if s.TotalGames <= 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.TotalGames)
}

// MaxCharacterGames returns the game count of the most-played character
// in the season record.
func (s SeasonStats) MaxCharacterGames() int {
	maxGames := 0
	for _, usage := range s.CharacterUsage {
		if usage.GamesPlayed > maxGames {
			maxGames = usage.GamesPlayed
		}
	}
	return maxGames
}

// RecentForm averages rank and damage over up to window most recent
// matches. Matches are expected newest first. counted reports how many
// matches actually contributed.
func RecentForm(matches []Match, window int) (avgRank, avgDamage float64, counted int) {
	if window <= 0 || len(matches) == 0 {
		return 0, 0, 0
	}
	if window > len(matches) {
		window = len(matches)
	}

	var rankSum, damageSum float64
	for _, m := range matches[:window] {
		rankSum += float64(m.Rank)
		damageSum += m.DamageToPlayer
	}
	return rankSum / float64(window), damageSum / float64(window), window
}

// MostPlayedCharacter returns the character appearing most often in the
// given matches. Earlier (more recent) matches win ties.
func MostPlayedCharacter(matches []Match) (CharacterUsage, bool) {
	if len(matches) == 0 {
		return CharacterUsage{}, false
	}

	counts := make(map[int64]int, 8)
	order := make([]int64, 0, 8)
	for _, m := range matches {
		if _, seen := counts[m.CharacterID]; !seen {
			order = append(order, m.CharacterID)
		}
		counts[m.CharacterID]++
	}

	best := CharacterUsage{}
	for _, id := range order {
		if counts[id] > best.GamesPlayed {
			best = CharacterUsage{CharacterID: id, GamesPlayed: counts[id]}
		}
	}
	return best, true
}

// InferSeasonID picks the season of the first match carrying a non-zero
// season id. Matches are expected newest first.
func InferSeasonID(matches []Match) (int64, bool) {
	for _, m := range matches {
		if m.SeasonID > 0 {
			return m.SeasonID, true
		}
	}
	return 0, false
}
