package usecase

import (
	"context"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/kyudori/er-scout/internal/platform/logging"
)

// defaultCompareWorkers matches the two-teammate comparison use case.
const defaultCompareWorkers = 2

// CompareService evaluates several nicknames with a small bounded
// worker pool and returns results in input order.
type CompareService struct {
	evaluations *EvaluationService
	pool        *ants.Pool
	logger      *logging.Logger
}

func NewCompareService(evaluations *EvaluationService, maxWorkers int, logger *logging.Logger) (*CompareService, error) {
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := ants.NewPool(normalizeCompareWorkerCount(maxWorkers))
	if err != nil {
		return nil, err
	}
	return &CompareService{
		evaluations: evaluations,
		pool:        pool,
		logger:      logger,
	}, nil
}

func (s *CompareService) Close() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// Compare runs one evaluation per nickname. A pool submission failure
// degrades that slot to an error-tagged result instead of failing the
// whole batch.
func (s *CompareService) Compare(ctx context.Context, nicknames []string) []Evaluation {
	ctx, span := startUsecaseSpan(ctx, "CompareService.Compare")
	defer span.End()

	results := make([]Evaluation, len(nicknames))
	var wg sync.WaitGroup

	for i, nickname := range nicknames {
		i, nickname := i, nickname
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			results[i] = s.evaluations.Evaluate(ctx, nickname)
		})
		if err != nil {
			wg.Done()
			s.logger.WarnContext(ctx, "compare pool submission failed", "nickname", nickname, "error", err)
			results[i] = Evaluation{
				Status:    StatusError,
				Nickname:  nickname,
				ErrorKind: "transient",
				Message:   "evaluation could not be scheduled",
			}
		}
	}

	wg.Wait()
	return results
}

// ParseNicknames splits free-form input on spaces, commas, and slashes.
// Empty segments are dropped; order and duplicates are preserved.
func ParseNicknames(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == ',' || r == '/' || r == '\t' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeCompareWorkerCount(requested int) int {
	if requested < 1 || requested > defaultCompareWorkers {
		return defaultCompareWorkers
	}
	return requested
}
