package bser

import (
	"strconv"
	"strings"

	"github.com/kyudori/er-scout/internal/domain/player"
)

// Normalize unwraps the two envelope shapes the upstream is known to
// use: a {code, message, data} wrapper, or bare resource keys at the
// top level. The data object wins when present; anything else falls
// back to the raw object unchanged so top-level lookups still work.
// Never fails.
func Normalize(raw map[string]any) map[string]any {
	if raw == nil {
		return map[string]any{}
	}
	if data, ok := raw["data"].(map[string]any); ok {
		return data
	}
	return raw
}

func parseIdentity(nickname string, payload, raw map[string]any) (player.Identity, bool) {
	user := mapValue(payload, "user")
	if user == nil {
		user = mapValue(raw, "user")
	}
	if user == nil {
		return player.Identity{}, false
	}

	// Prefer the UID-style field; the numeric userNum is legacy.
	id := firstNonEmpty(getString(user, "userId"), getString(user, "uid"))
	if id == "" {
		if num := getInt64(user, "userNum"); num > 0 {
			id = formatInt(num)
		}
	}
	if id == "" {
		return player.Identity{}, false
	}

	resolved := firstNonEmpty(getString(user, "nickname"), nickname)
	return player.Identity{Nickname: resolved, UserID: id}, true
}

// parseMatches reads the match list from either resource key and maps
// each usable row. Malformed history degrades to an empty list.
func parseMatches(payload, raw map[string]any, limit int) []player.Match {
	rows := sliceValue(payload, "userGames")
	if rows == nil {
		rows = sliceValue(raw, "userGames")
	}
	if rows == nil {
		rows = sliceValue(payload, "games")
	}
	if rows == nil {
		return []player.Match{}
	}

	out := make([]player.Match, 0, len(rows))
	for _, rawRow := range rows {
		row, ok := rawRow.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, player.Match{
			GameID:         getInt64(row, "gameId"),
			SeasonID:       getInt64(row, "seasonId"),
			CharacterID:    getInt64(row, "characterNum"),
			Rank:           int(getInt64(row, "gameRank")),
			DamageToPlayer: getFloat(row, "damageToPlayer"),
			MMR:            getFloat(row, "mmrAfter"),
			MatchingMode:   int(getInt64(row, "matchingMode")),
			Teammates:      parseTeammates(row),
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func parseTeammates(row map[string]any) []player.TeammateRef {
	rows := sliceValue(row, "teamUser")
	if rows == nil {
		return nil
	}

	out := make([]player.TeammateRef, 0, len(rows))
	for _, rawMate := range rows {
		mate, ok := rawMate.(map[string]any)
		if !ok {
			continue
		}
		ref := player.TeammateRef{
			CharacterID: getInt64(mate, "characterNum"),
			UserID:      firstNonEmpty(getString(mate, "userId"), getString(mate, "uid")),
		}
		if ref.UserID == "" {
			if num := getInt64(mate, "userNum"); num > 0 {
				ref.UserID = formatInt(num)
			}
		}
		out = append(out, ref)
	}
	return out
}

func parseSeasonStats(payload, raw map[string]any) (player.SeasonStats, bool) {
	rows := sliceValue(payload, "userStats")
	if rows == nil {
		rows = sliceValue(raw, "userStats")
	}
	if len(rows) == 0 {
		return player.SeasonStats{}, false
	}
	row, ok := rows[0].(map[string]any)
	if !ok {
		return player.SeasonStats{}, false
	}

	total := int(getInt64(row, "totalGames"))
	stats := player.SeasonStats{
		TotalGames:    total,
		Wins:          int(getInt64(row, "totalWins")),
		Top3Rate:      normalizeRate(getFloat(row, "top3"), total),
		Top5Rate:      normalizeRate(getFloat(row, "top5"), total),
		Top7Rate:      normalizeRate(getFloat(row, "top7"), total),
		AverageRank:   getFloat(row, "averageRank"),
		AverageDamage: getFloat(row, "averageDamage"),
		AverageKill:   getFloat(row, "averageKills"),
		AverageAssist: getFloat(row, "averageAssistants"),
	}
	if stats.Wins == 0 {
		stats.Wins = int(getInt64(row, "wins"))
	}

	for _, rawUsage := range sliceValue(row, "characterStats") {
		usage, ok := rawUsage.(map[string]any)
		if !ok {
			continue
		}
		stats.CharacterUsage = append(stats.CharacterUsage, player.CharacterUsage{
			CharacterID: getInt64(usage, "characterCode"),
			GamesPlayed: int(getInt64(usage, "totalGames")),
		})
	}
	return stats, true
}

// normalizeRate pins the top-N contract to a rate in [0,1]. Some
// endpoint versions ship raw finish counts instead; anything above 1 is
// treated as a count and divided by the season sample.
func normalizeRate(v float64, totalGames int) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		if totalGames <= 0 {
			return 0
		}
		v = v / float64(totalGames)
	}
	if v > 1 {
		return 1
	}
	return v
}

func getString(src map[string]any, key string) string {
	if src == nil {
		return ""
	}
	raw, ok := src[key]
	if !ok || raw == nil {
		return ""
	}
	value, ok := raw.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

func getInt64(src map[string]any, key string) int64 {
	if src == nil {
		return 0
	}
	switch value := src[key].(type) {
	case float64:
		return int64(value)
	case float32:
		return int64(value)
	case int:
		return int64(value)
	case int64:
		return value
	default:
		return 0
	}
}

func getFloat(src map[string]any, key string) float64 {
	if src == nil {
		return 0
	}
	switch value := src[key].(type) {
	case float64:
		return value
	case float32:
		return float64(value)
	case int:
		return float64(value)
	case int64:
		return float64(value)
	default:
		return 0
	}
}

func mapValue(src map[string]any, key string) map[string]any {
	if src == nil {
		return nil
	}
	value, _ := src[key].(map[string]any)
	return value
}

func sliceValue(src map[string]any, key string) []any {
	if src == nil {
		return nil
	}
	value, _ := src[key].([]any)
	return value
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func abbreviateBody(raw []byte) string {
	const limit = 256
	body := strings.TrimSpace(string(raw))
	if len(body) > limit {
		return body[:limit] + "..."
	}
	return body
}
