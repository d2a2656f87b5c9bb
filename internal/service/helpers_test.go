package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/invigilo/invigilo-go-api/internal/dto"
	"github.com/invigilo/invigilo-go-api/internal/models"
	"github.com/invigilo/invigilo-go-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type fakeExamRepo struct {
	exams map[uint]models.Exam
}

func (f *fakeExamRepo) GetByID(_ context.Context, id uint) (models.Exam, error) {
	exam, ok := f.exams[id]
	if !ok {
		return models.Exam{}, gorm.ErrRecordNotFound
	}
	return exam, nil
}

func (f *fakeExamRepo) GetWithQuestions(ctx context.Context, id uint) (models.Exam, error) {
	return f.GetByID(ctx, id)
}

type fakeStudentRepo struct {
	students map[uint]models.Student
	enrolled bool
	updates  int
}

func (f *fakeStudentRepo) GetByID(_ context.Context, id uint) (models.Student, error) {
	student, ok := f.students[id]
	if !ok {
		return models.Student{}, gorm.ErrRecordNotFound
	}
	return student, nil
}

func (f *fakeStudentRepo) Update(_ context.Context, student *models.Student) error {
	f.updates++
	f.students[student.ID] = *student
	return nil
}

func (f *fakeStudentRepo) IsEnrolled(context.Context, uint, uint) (bool, error) {
	return f.enrolled, nil
}

// fakeAttemptRepo mirrors the conditional-write semantics of the real
// repository: lock, submit and grade succeed at most once and only from the
// states the SQL guards allow.
type fakeAttemptRepo struct {
	mu       sync.Mutex
	attempts map[uint]*models.ExamAttempt
	answers  map[uint][]models.ExamAnswer
	nextID   uint
	graded   []models.ExamAttempt
}

func newFakeAttemptRepo() *fakeAttemptRepo {
	return &fakeAttemptRepo{
		attempts: map[uint]*models.ExamAttempt{},
		answers:  map[uint][]models.ExamAnswer{},
		nextID:   1,
	}
}

func (f *fakeAttemptRepo) put(attempt models.ExamAttempt) *models.ExamAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	if attempt.ID == 0 {
		attempt.ID = f.nextID
		f.nextID++
	} else if attempt.ID >= f.nextID {
		f.nextID = attempt.ID + 1
	}
	stored := attempt
	f.attempts[stored.ID] = &stored
	return &stored
}

func (f *fakeAttemptRepo) Create(_ context.Context, attempt *models.ExamAttempt) error {
	stored := f.put(*attempt)
	attempt.ID = stored.ID
	return nil
}

func (f *fakeAttemptRepo) Delete(_ context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.attempts, id)
	return nil
}

func (f *fakeAttemptRepo) GetByID(_ context.Context, id uint) (models.ExamAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt, ok := f.attempts[id]
	if !ok {
		return models.ExamAttempt{}, gorm.ErrRecordNotFound
	}
	return *attempt, nil
}

func (f *fakeAttemptRepo) CountByExamAndStudent(_ context.Context, examID, studentID uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, attempt := range f.attempts {
		if attempt.ExamID == examID && attempt.StudentID == studentID {
			count++
		}
	}
	return count, nil
}

func (f *fakeAttemptRepo) UpdateColumns(_ context.Context, id uint, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt, ok := f.attempts[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for key, value := range fields {
		switch key {
		case "verification_session_id":
			v := value.(string)
			attempt.VerificationSessionID = &v
		case "verification_score":
			v := value.(float64)
			attempt.VerificationScore = &v
		case "verification_threshold":
			v := value.(float64)
			attempt.VerificationThreshold = &v
		case "is_locked":
			attempt.IsLocked = value.(bool)
		case "locked_reason":
			attempt.LockedReason = value.(string)
		case "unlocked_at":
			v := value.(time.Time)
			attempt.UnlockedAt = &v
		}
	}
	return nil
}

func (f *fakeAttemptRepo) Lock(_ context.Context, id uint, reason string, at time.Time, suspicionDelta int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt, ok := f.attempts[id]
	if !ok {
		return false, nil
	}
	if attempt.IsLocked || attempt.Status != models.AttemptStatusInProgress {
		return false, nil
	}
	attempt.IsLocked = true
	attempt.LockedReason = reason
	attempt.LockedAt = &at
	attempt.SuspiciousActivityCount += suspicionDelta
	return true, nil
}

func (f *fakeAttemptRepo) IncrementSuspicion(_ context.Context, id uint, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if attempt, ok := f.attempts[id]; ok {
		attempt.SuspiciousActivityCount += delta
	}
	return nil
}

func (f *fakeAttemptRepo) SubmitWithAnswers(_ context.Context, id uint, status string, submittedAt time.Time, timeSpent int, answers []models.ExamAnswer) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt, ok := f.attempts[id]
	if !ok || attempt.Status != models.AttemptStatusInProgress {
		return false, nil
	}
	attempt.Status = status
	attempt.SubmittedAt = &submittedAt
	attempt.TimeSpent = timeSpent
	f.answers[id] = append(f.answers[id], answers...)
	return true, nil
}

func (f *fakeAttemptRepo) Grade(_ context.Context, id uint, result repository.GradeResult) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt, ok := f.attempts[id]
	if !ok || attempt.Status == models.AttemptStatusGraded {
		return false, nil
	}
	attempt.Status = models.AttemptStatusGraded
	attempt.TotalScore = &result.TotalScore
	attempt.Percentage = &result.Percentage
	attempt.Passed = &result.Passed
	attempt.GradedAt = &result.GradedAt
	return true, nil
}

func (f *fakeAttemptRepo) ListGradedByExam(context.Context, uint) ([]models.ExamAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ExamAttempt(nil), f.graded...), nil
}

type fakeAnswerRepo struct {
	mu      sync.Mutex
	answers map[uint]*models.ExamAnswer
}

func newFakeAnswerRepo(answers ...models.ExamAnswer) *fakeAnswerRepo {
	repo := &fakeAnswerRepo{answers: map[uint]*models.ExamAnswer{}}
	for _, answer := range answers {
		stored := answer
		repo.answers[stored.ID] = &stored
	}
	return repo
}

func (f *fakeAnswerRepo) ListByAttempt(_ context.Context, attemptID uint) ([]models.ExamAnswer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ExamAnswer
	for _, answer := range f.answers {
		if answer.AttemptID == attemptID {
			out = append(out, *answer)
		}
	}
	return out, nil
}

func (f *fakeAnswerRepo) GetByID(_ context.Context, id uint) (models.ExamAnswer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	answer, ok := f.answers[id]
	if !ok {
		return models.ExamAnswer{}, gorm.ErrRecordNotFound
	}
	return *answer, nil
}

func (f *fakeAnswerRepo) AwardPoints(_ context.Context, id uint, isCorrect bool, points float64, gradedBy uint, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	answer, ok := f.answers[id]
	if !ok || answer.PointsAwarded != nil {
		return false, nil
	}
	answer.IsCorrect = &isCorrect
	answer.PointsAwarded = &points
	answer.GradedBy = &gradedBy
	return true, nil
}

type fakeIncidentRepo struct {
	mu        sync.Mutex
	incidents []models.ProctoringIncident
	nextID    uint
}

func (f *fakeIncidentRepo) Append(_ context.Context, incident *models.ProctoringIncident) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	incident.ID = f.nextID
	f.incidents = append(f.incidents, *incident)
	return nil
}

func (f *fakeIncidentRepo) ListByAttempt(_ context.Context, attemptID uint, limit int) ([]models.ProctoringIncident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ProctoringIncident
	for _, incident := range f.incidents {
		if incident.AttemptID == attemptID {
			out = append(out, incident)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeIncidentRepo) CountByAttempt(_ context.Context, attemptID uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, incident := range f.incidents {
		if incident.AttemptID == attemptID {
			count++
		}
	}
	return count, nil
}

func (f *fakeIncidentRepo) byType(eventType string) []models.ProctoringIncident {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ProctoringIncident
	for _, incident := range f.incidents {
		if incident.EventType == eventType {
			out = append(out, incident)
		}
	}
	return out
}

type fakeRankingRepo struct {
	mu       sync.Mutex
	rows     map[uint][]models.ExamRanking
	replaces int
}

func newFakeRankingRepo() *fakeRankingRepo {
	return &fakeRankingRepo{rows: map[uint][]models.ExamRanking{}}
}

func (f *fakeRankingRepo) ReplaceForExam(_ context.Context, examID uint, rows []models.ExamRanking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaces++
	f.rows[examID] = append([]models.ExamRanking(nil), rows...)
	return nil
}

func (f *fakeRankingRepo) ListByExam(_ context.Context, examID uint, filter repository.RankingFilter) ([]models.ExamRanking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ExamRanking
	for _, row := range f.rows[examID] {
		if filter.District != nil && (row.District == nil || *row.District != *filter.District) {
			continue
		}
		if filter.Zone != nil && (row.Zone == nil || *row.Zone != *filter.Zone) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

type fakeNotifications struct {
	mu        sync.Mutex
	published []dto.NotificationCreateRequest
}

func (f *fakeNotifications) Publish(_ context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, payload)
	return dto.NotificationResponse{ID: uint(len(f.published)), UserID: payload.UserID, Message: payload.Message}, nil
}

func (f *fakeNotifications) List(context.Context, string, int, int) ([]dto.NotificationResponse, error) {
	return nil, nil
}

func (f *fakeNotifications) MarkRead(context.Context, uint, string) (dto.NotificationResponse, error) {
	return dto.NotificationResponse{}, nil
}

func (f *fakeNotifications) Subscribe(string) (<-chan dto.NotificationResponse, func()) {
	ch := make(chan dto.NotificationResponse)
	return ch, func() { close(ch) }
}

func (f *fakeNotifications) Start(context.Context) {}

func (f *fakeNotifications) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func ptr[T any](v T) *T {
	return &v
}
