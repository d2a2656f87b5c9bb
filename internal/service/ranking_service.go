package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/invigilo/invigilo-go-api/internal/dto"
	"github.com/invigilo/invigilo-go-api/internal/models"
	"github.com/invigilo/invigilo-go-api/internal/observability"
	"github.com/invigilo/invigilo-go-api/internal/repository"
)

// ErrRankingDisabled indicates the exam does not participate in ranking.
var ErrRankingDisabled = errors.New("ranking is disabled for this exam")

const defaultRankingBatchSize = 100

// RankingService recalculates and serves ranking boards. Recalculation is
// idempotent: running it twice over the same graded set yields identical
// boards because rows are replaced wholesale.
type RankingService interface {
	Recalculate(ctx context.Context, examID uint) (dto.RecalculateResponse, error)
	Board(ctx context.Context, examID uint, filter dto.RankingFilterRequest) (dto.RankingBoardResponse, error)
}

type rankingService struct {
	exams         repository.ExamRepository
	attempts      repository.AttemptRepository
	rankings      repository.RankingRepository
	notifications NotificationService
	redis         *redis.Client
	cacheTTL      time.Duration
	batchSize     int
	validator     *validator.Validate
	logger        zerolog.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

// NewRankingService builds the ranking service. Redis is optional board
// caching; the notification service is optional rank announcements.
func NewRankingService(
	exams repository.ExamRepository,
	attempts repository.AttemptRepository,
	rankings repository.RankingRepository,
	notifications NotificationService,
	redisClient *redis.Client,
	cacheTTL time.Duration,
	batchSize int,
	validate *validator.Validate,
	logger zerolog.Logger,
) RankingService {
	if batchSize <= 0 {
		batchSize = defaultRankingBatchSize
	}

	return &rankingService{
		exams:         exams,
		attempts:      attempts,
		rankings:      rankings,
		notifications: notifications,
		redis:         redisClient,
		cacheTTL:      cacheTTL,
		batchSize:     batchSize,
		validator:     validate,
		logger:        logger.With().Str("component", "ranking_service").Logger(),
		tracer:        otel.Tracer("github.com/invigilo/invigilo-go-api/internal/service/ranking"),
		now:           time.Now,
	}
}

// Recalculate rebuilds the exam's ranking board from its graded attempts.
// Students with several graded attempts rank by their best score. Ties share
// a rank and the following entry skips past them, so three students at the
// top produce ranks 1, 1, 3.
func (s *rankingService) Recalculate(ctx context.Context, examID uint) (dto.RecalculateResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "rankings.recalculate", trace.WithAttributes(
		attribute.Int("exam.id", int(examID)),
	))
	defer span.End()

	started := s.now()

	exam, err := s.exams.GetByID(spanCtx, examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.RecalculateResponse{}, ErrExamNotFound
		}
		return dto.RecalculateResponse{}, err
	}

	if !exam.EnableRanking {
		return dto.RecalculateResponse{}, ErrRankingDisabled
	}

	attempts, err := s.attempts.ListGradedByExam(spanCtx, examID)
	if err != nil {
		return dto.RecalculateResponse{}, err
	}

	rows := buildRankings(examID, attempts, s.now())

	if err := s.rankings.ReplaceForExam(spanCtx, examID, rows); err != nil {
		span.RecordError(err)
		return dto.RecalculateResponse{}, err
	}

	s.invalidateBoards(spanCtx, examID)
	observability.RankingPassDuration().Observe(s.now().Sub(started).Seconds())

	s.logger.Info().
		Uint("exam_id", examID).
		Int("ranked", len(rows)).
		Msg("ranking board recalculated")

	s.notifyRanks(spanCtx, exam, rows)

	return dto.RecalculateResponse{ExamID: examID, TotalRanked: len(rows)}, nil
}

// Board serves a ranking board, preferring the redis cache when present.
func (s *rankingService) Board(ctx context.Context, examID uint, filter dto.RankingFilterRequest) (dto.RankingBoardResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return dto.RankingBoardResponse{}, err
	}

	scope := filter.Scope
	if scope == "" {
		scope = models.RankScopeGlobal
	}

	key := s.boardCacheKey(examID, scope, filter.District, filter.Zone)
	if cached, ok := s.readBoardCache(ctx, key); ok {
		cached.CacheHit = true
		return cached, nil
	}

	if _, err := s.exams.GetByID(ctx, examID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.RankingBoardResponse{}, ErrExamNotFound
		}
		return dto.RankingBoardResponse{}, err
	}

	rows, err := s.rankings.ListByExam(ctx, examID, repository.RankingFilter{
		Scope:    scope,
		District: filter.District,
		Zone:     filter.Zone,
	})
	if err != nil {
		return dto.RankingBoardResponse{}, err
	}

	board := dto.RankingBoardResponse{
		ExamID:  examID,
		Scope:   scope,
		Entries: dto.NewRankingEntryResponseSlice(rows),
	}
	if len(rows) > 0 {
		board.CalculatedAt = rows[0].CalculatedAt
	}

	s.writeBoardCache(ctx, key, board)

	return board, nil
}

// buildRankings computes tie-aware ranks for every scope. Each scope walks
// its descending score list independently: equal scores share the previous
// rank, a lower score takes rank position+1.
func buildRankings(examID uint, attempts []models.ExamAttempt, calculatedAt time.Time) []models.ExamRanking {
	type entry struct {
		studentID  uint
		score      float64
		percentage float64
		district   *string
		zone       *string
	}

	best := make(map[uint]entry)
	order := make([]uint, 0, len(attempts))
	for _, attempt := range attempts {
		if attempt.TotalScore == nil {
			continue
		}
		score := *attempt.TotalScore
		percentage := 0.0
		if attempt.Percentage != nil {
			percentage = *attempt.Percentage
		}

		existing, seen := best[attempt.StudentID]
		if seen && existing.score >= score {
			continue
		}
		if !seen {
			order = append(order, attempt.StudentID)
		}
		best[attempt.StudentID] = entry{
			studentID:  attempt.StudentID,
			score:      score,
			percentage: percentage,
			district:   attempt.Student.DistrictID,
			zone:       attempt.Student.ZoneID,
		}
	}

	entries := make([]entry, 0, len(best))
	for _, studentID := range order {
		entries = append(entries, best[studentID])
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].score > entries[j].score
	})

	rows := make([]models.ExamRanking, len(entries))
	for i, e := range entries {
		rows[i] = models.ExamRanking{
			ExamID:       examID,
			StudentID:    e.studentID,
			Score:        e.score,
			Percentage:   e.percentage,
			District:     e.district,
			Zone:         e.zone,
			GlobalTotal:  len(entries),
			CalculatedAt: calculatedAt,
		}
	}

	// Global walk.
	currentRank := 1
	previousScore := 0.0
	for i := range rows {
		if i > 0 && rows[i].Score != previousScore {
			currentRank = i + 1
		}
		rows[i].GlobalRank = currentRank
		previousScore = rows[i].Score
	}

	rankScope := func(key func(models.ExamRanking) *string, setRank func(*models.ExamRanking, int, int)) {
		groups := make(map[string][]int)
		groupOrder := make([]string, 0)
		for i := range rows {
			dim := key(rows[i])
			if dim == nil || *dim == "" {
				continue
			}
			if _, ok := groups[*dim]; !ok {
				groupOrder = append(groupOrder, *dim)
			}
			groups[*dim] = append(groups[*dim], i)
		}

		for _, dim := range groupOrder {
			indexes := groups[dim]
			rank := 1
			prev := 0.0
			for position, idx := range indexes {
				if position > 0 && rows[idx].Score != prev {
					rank = position + 1
				}
				setRank(&rows[idx], rank, len(indexes))
				prev = rows[idx].Score
			}
		}
	}

	rankScope(
		func(r models.ExamRanking) *string { return r.District },
		func(r *models.ExamRanking, rank, total int) {
			r.DistrictRank = &rank
			r.DistrictTotal = &total
		},
	)
	rankScope(
		func(r models.ExamRanking) *string { return r.Zone },
		func(r *models.ExamRanking, rank, total int) {
			r.ZoneRank = &rank
			r.ZoneTotal = &total
		},
	)

	return rows
}

// notifyRanks announces results fire-and-forget, in batches so a large exam
// cannot stall the recalculation response for long.
func (s *rankingService) notifyRanks(ctx context.Context, exam models.Exam, rows []models.ExamRanking) {
	if s.notifications == nil || len(rows) == 0 {
		return
	}

	total := len(rows)
	for start := 0; start < total; start += s.batchSize {
		end := start + s.batchSize
		if end > total {
			end = total
		}

		for _, row := range rows[start:end] {
			payload := dto.NotificationCreateRequest{
				UserID:  fmt.Sprintf("%d", row.StudentID),
				Title:   "Exam Rankings Published",
				Message: fmt.Sprintf("You ranked #%d out of %d in %s.", row.GlobalRank, row.GlobalTotal, exam.Title),
				Type:    models.NotificationTypeExam,
				Metadata: map[string]interface{}{
					"exam_id":     exam.ID,
					"global_rank": row.GlobalRank,
				},
			}
			if _, err := s.notifications.Publish(ctx, payload); err != nil {
				s.logger.Warn().Err(err).Uint("student_id", row.StudentID).Msg("failed to send rank notification")
			}
		}
	}
}

func (s *rankingService) boardCacheKey(examID uint, scope string, district, zone *string) string {
	d, z := "", ""
	if district != nil {
		d = *district
	}
	if zone != nil {
		z = *zone
	}
	return fmt.Sprintf("invigilo:rankings:%d:%s:%s:%s", examID, scope, d, z)
}

func (s *rankingService) readBoardCache(ctx context.Context, key string) (dto.RankingBoardResponse, bool) {
	if s.redis == nil {
		return dto.RankingBoardResponse{}, false
	}

	payload, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Str("key", key).Msg("ranking cache read failed")
		}
		return dto.RankingBoardResponse{}, false
	}

	var board dto.RankingBoardResponse
	if err := json.Unmarshal(payload, &board); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("ranking cache entry corrupt")
		return dto.RankingBoardResponse{}, false
	}

	return board, true
}

func (s *rankingService) writeBoardCache(ctx context.Context, key string, board dto.RankingBoardResponse) {
	if s.redis == nil || s.cacheTTL <= 0 {
		return
	}

	payload, err := json.Marshal(board)
	if err != nil {
		return
	}

	if err := s.redis.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("ranking cache write failed")
	}
}

// invalidateBoards drops the cached scope boards for an exam after a
// recalculation. Filtered variants expire on their own TTL.
func (s *rankingService) invalidateBoards(ctx context.Context, examID uint) {
	if s.redis == nil {
		return
	}

	keys := []string{
		s.boardCacheKey(examID, models.RankScopeGlobal, nil, nil),
		s.boardCacheKey(examID, models.RankScopeDistrict, nil, nil),
		s.boardCacheKey(examID, models.RankScopeZone, nil, nil),
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("exam_id", examID).Msg("ranking cache invalidation failed")
	}
}
