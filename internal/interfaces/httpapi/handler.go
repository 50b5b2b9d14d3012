package httpapi

import (
	"fmt"
	"net/http"

	sonic "github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"

	"github.com/kyudori/er-scout/internal/platform/logging"
	"github.com/kyudori/er-scout/internal/usecase"
)

// maxCompareNicknames bounds one evaluate request; the worker pool
// behind it is tiny, so batches stay short.
const maxCompareNicknames = 10

type Handler struct {
	compare   *usecase.CompareService
	portraits *usecase.PortraitService
	validate  *validator.Validate
	logger    *logging.Logger
}

func NewHandler(compare *usecase.CompareService, portraits *usecase.PortraitService, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		compare:   compare,
		portraits: portraits,
		validate:  validator.New(),
		logger:    logger,
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeSuccess(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

type evaluateRequest struct {
	Nicknames string `json:"nicknames" validate:"required,min=1,max=512"`
}

type evaluationDTO struct {
	Status   string `json:"status"`
	Nickname string `json:"nickname"`
	UserID   string `json:"userId,omitempty"`

	Score      *int     `json:"score,omitempty"`
	Tier       string   `json:"tier,omitempty"`
	Strengths  []string `json:"strengths,omitempty"`
	MajorRisks []string `json:"majorRisks,omitempty"`
	MinorRisks []string `json:"minorRisks,omitempty"`

	TotalGames  int               `json:"totalGames"`
	RecentGames int               `json:"recentGames"`
	MostPlayed  *characterUsageDT `json:"mostPlayed,omitempty"`

	Warning string `json:"warning,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

type characterUsageDT struct {
	CharacterID int64 `json:"characterId"`
	GamesPlayed int   `json:"gamesPlayed"`
}

// Evaluate scores every nickname in the request. Pipeline failures for
// individual players come back as tagged entries, not HTTP errors.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Evaluate")
	defer span.End()

	var req evaluateRequest
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: malformed request body", usecase.ErrInvalidInput))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: %s", usecase.ErrInvalidInput, err))
		return
	}

	nicknames := usecase.ParseNicknames(req.Nicknames)
	if len(nicknames) == 0 {
		writeError(ctx, w, fmt.Errorf("%w: no nicknames in request", usecase.ErrInvalidInput))
		return
	}
	if len(nicknames) > maxCompareNicknames {
		writeError(ctx, w, fmt.Errorf("%w: at most %d nicknames per request", usecase.ErrInvalidInput, maxCompareNicknames))
		return
	}

	results := h.compare.Compare(ctx, nicknames)
	out := make([]evaluationDTO, 0, len(results))
	for _, result := range results {
		out = append(out, toEvaluationDTO(result))
	}
	writeSuccess(ctx, w, http.StatusOK, map[string]any{"evaluations": out})
}

type portraitRequest struct {
	Nickname string `json:"nickname" validate:"required,min=1,max=64"`
}

type portraitDTO struct {
	Evaluation evaluationDTO `json:"evaluation"`

	WindowGames   int     `json:"windowGames"`
	RecentAvgRank float64 `json:"recentAvgRank"`

	RankPct   int `json:"rankPct"`
	DamagePct int `json:"damagePct"`
	KillPct   int `json:"killPct"`

	Stabilizing []synergyEntryDTO `json:"stabilizing"`
	Carrying    []synergyEntryDTO `json:"carrying"`
}

type synergyEntryDTO struct {
	CharacterID   int64   `json:"characterId"`
	GamesTogether int     `json:"gamesTogether"`
	AvgRank       float64 `json:"avgRank"`
	WinRate       float64 `json:"winRate"`
}

func (h *Handler) Portrait(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Portrait")
	defer span.End()

	var req portraitRequest
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: malformed request body", usecase.ErrInvalidInput))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: %s", usecase.ErrInvalidInput, err))
		return
	}

	portrait, err := h.portraits.Build(ctx, req.Nickname)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	dto := portraitDTO{
		Evaluation:    toEvaluationDTO(portrait.Evaluation),
		WindowGames:   portrait.WindowGames,
		RecentAvgRank: portrait.RecentAvgRank,
		RankPct:       portrait.RankPct,
		DamagePct:     portrait.DamagePct,
		KillPct:       portrait.KillPct,
		Stabilizing:   make([]synergyEntryDTO, 0, len(portrait.Synergy.Stabilizing)),
		Carrying:      make([]synergyEntryDTO, 0, len(portrait.Synergy.Carrying)),
	}
	for _, entry := range portrait.Synergy.Stabilizing {
		dto.Stabilizing = append(dto.Stabilizing, synergyEntryDTO(entry))
	}
	for _, entry := range portrait.Synergy.Carrying {
		dto.Carrying = append(dto.Carrying, synergyEntryDTO(entry))
	}
	writeSuccess(ctx, w, http.StatusOK, dto)
}

func toEvaluationDTO(e usecase.Evaluation) evaluationDTO {
	dto := evaluationDTO{
		Status:      string(e.Status),
		Nickname:    e.Nickname,
		UserID:      e.UserID,
		TotalGames:  e.TotalGames,
		RecentGames: e.RecentGames,
		Warning:     e.Warning,
		Error:       e.ErrorKind,
		Message:     e.Message,
	}
	if e.Status == usecase.StatusScored {
		score := e.Score
		dto.Score = &score
		dto.Tier = string(e.Tier)
		dto.Strengths = e.Strengths
		dto.MajorRisks = e.MajorRisks
		dto.MinorRisks = e.MinorRisks
	}
	if e.MostPlayed != nil {
		dto.MostPlayed = &characterUsageDT{
			CharacterID: e.MostPlayed.CharacterID,
			GamesPlayed: e.MostPlayed.GamesPlayed,
		}
	}
	return dto
}
