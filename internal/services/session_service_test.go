package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adaptix-edu/exam-service/internal/adaptive"
	"github.com/adaptix-edu/exam-service/internal/config"
	"github.com/adaptix-edu/exam-service/internal/events"
	"github.com/adaptix-edu/exam-service/internal/grading"
	"github.com/adaptix-edu/exam-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func choiceB() *string {
	b := "B"
	return &b
}

// adaptiveExam builds an active three-item exam whose difficulties make
// the selection order unambiguous.
func adaptiveExam() *models.ExamDefinition {
	return &models.ExamDefinition{
		ID:                1,
		Title:             "Biology Midterm",
		Status:            models.ExamActive,
		DurationSeconds:   600,
		TotalPoints:       15,
		PassingRatio:      0.4,
		AdaptiveEnabled:   true,
		ProctoringEnabled: true,
		Items: []models.Item{
			{ID: 1, ExamID: 1, Kind: models.ItemMultipleChoice, Difficulty: 0.3, Points: 5, CorrectChoice: choiceB()},
			{ID: 2, ExamID: 1, Kind: models.ItemMultipleChoice, Difficulty: 0.5, Points: 5, CorrectChoice: choiceB()},
			{ID: 3, ExamID: 1, Kind: models.ItemMultipleChoice, Difficulty: 0.7, Points: 5, CorrectChoice: choiceB()},
		},
	}
}

func inProgressSubmission() *models.Submission {
	return &models.Submission{
		ID:              42,
		ExamID:          1,
		StudentID:       "student-1",
		Status:          models.SubmissionInProgress,
		AbilityEstimate: 0.5,
		StartedAt:       testStart,
		Version:         1,
	}
}

type sessionFixture struct {
	repo      *MockRepository
	grader    *MockGrader
	publisher *events.MockEventPublisher
	clock     *fixedClock
	service   SessionService
}

func newSessionFixture() *sessionFixture {
	repo := NewMockRepository()
	grader := new(MockGrader)
	publisher := events.NewMockEventPublisher(testLogger())
	clock := &fixedClock{now: testStart.Add(time.Minute)}

	return &sessionFixture{
		repo:      repo,
		grader:    grader,
		publisher: publisher,
		clock:     clock,
		service:   NewSessionService(repo, grader, config.DefaultPolicy(), publisher, clock, testLogger()),
	}
}

func (f *sessionFixture) eventTypes() []events.EventType {
	published := f.publisher.GetPublishedEvents()
	types := make([]events.EventType, len(published))
	for i, e := range published {
		types[i] = e.Type
	}
	return types
}

// ===== START =====

func TestSessionService_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("serves the closest-difficulty item first", func(t *testing.T) {
		f := newSessionFixture()
		exam := adaptiveExam()

		f.repo.ExamRepo.On("GetByIDWithItems", ctx, uint(1)).Return(exam, nil)
		f.repo.SubmissionRepo.On("GetActive", ctx, uint(1), "student-1").Return(nil, nil)
		f.repo.SubmissionRepo.On("Create", ctx, mock.AnythingOfType("*models.Submission")).
			Run(func(args mock.Arguments) {
				args.Get(1).(*models.Submission).ID = 42
			}).Return(nil)
		f.repo.SubmissionRepo.On("RecordServed", ctx, mock.MatchedBy(func(served *models.ServedItem) bool {
			return served.SubmissionID == 42 && served.ItemID == 2
		})).Return(nil)

		resp, err := f.service.Start(ctx, 1, "student-1")
		require.NoError(t, err)
		assert.Equal(t, uint(42), resp.SubmissionID)
		assert.Equal(t, 3, resp.TotalItems)
		require.NotNil(t, resp.FirstItem)
		// Initial ability 0.5 matches the difficulty-0.5 item exactly.
		assert.Equal(t, uint(2), resp.FirstItem.ID)

		assert.Equal(t, []events.EventType{events.EventSessionStarted}, f.eventTypes())
	})

	t.Run("rejects a second attempt while one is in progress", func(t *testing.T) {
		f := newSessionFixture()

		f.repo.ExamRepo.On("GetByIDWithItems", ctx, uint(1)).Return(adaptiveExam(), nil)
		f.repo.SubmissionRepo.On("GetActive", ctx, uint(1), "student-1").Return(inProgressSubmission(), nil)

		_, err := f.service.Start(ctx, 1, "student-1")
		assert.ErrorIs(t, err, ErrAttemptAlreadyInProgress)
		f.repo.SubmissionRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("rejects a non-active exam", func(t *testing.T) {
		f := newSessionFixture()
		exam := adaptiveExam()
		exam.Status = models.ExamDraft

		f.repo.ExamRepo.On("GetByIDWithItems", ctx, uint(1)).Return(exam, nil)

		_, err := f.service.Start(ctx, 1, "student-1")
		assert.ErrorIs(t, err, ErrExamNotActive)
	})
}

// ===== SUBMIT =====

func TestSessionService_SubmitAnswer(t *testing.T) {
	ctx := context.Background()
	answerText := "b"

	t.Run("grades and serves the next item by updated ability", func(t *testing.T) {
		f := newSessionFixture()
		exam := adaptiveExam()
		locked := inProgressSubmission()

		f.repo.SubmissionRepo.On("GetByID", ctx, uint(42)).Return(inProgressSubmission(), nil)
		f.repo.ExamRepo.On("GetByIDWithItems", ctx, uint(1)).Return(exam, nil)
		f.repo.SubmissionRepo.On("GetServedItemIDs", ctx, uint(42)).Return([]uint{2}, nil)
		f.repo.AnswerRepo.On("HasAnswer", ctx, uint(42), uint(2)).Return(false, nil)
		f.grader.On("Grade", mock.Anything, mock.AnythingOfType("*models.Item"), &answerText, []byte(nil)).
			Return(&grading.Result{Score: 5, Feedback: grading.FeedbackCorrect}, nil)
		f.repo.SubmissionRepo.On("GetByIDForUpdate", ctx, uint(42)).Return(locked, nil)
		f.repo.AnswerRepo.On("Create", ctx, mock.AnythingOfType("*models.Answer")).Return(nil)
		f.repo.SubmissionRepo.On("RecordServed", ctx, mock.MatchedBy(func(served *models.ServedItem) bool {
			return served.ItemID == 3
		})).Return(nil)
		f.repo.SubmissionRepo.On("Update", ctx, locked).Return(nil)

		resp, err := f.service.SubmitAnswer(ctx, 42, 2, &AnswerPayload{Text: &answerText}, "student-1")
		require.NoError(t, err)
		assert.InDelta(t, 5.0, resp.Score, 1e-9)
		assert.False(t, resp.Completed)
		require.NotNil(t, resp.NextItem)
		// Full credit raised ability to 0.6; difficulty 0.7 is now closest.
		assert.Equal(t, uint(3), resp.NextItem.ID)
		assert.InDelta(t, 0.6, locked.AbilityEstimate, 1e-9)

		assert.Equal(t, []events.EventType{events.EventAnswerGraded}, f.eventTypes())
	})

	t.Run("resubmitting an answered item is rejected", func(t *testing.T) {
		f := newSessionFixture()

		f.repo.SubmissionRepo.On("GetByID", ctx, uint(42)).Return(inProgressSubmission(), nil)
		f.repo.ExamRepo.On("GetByIDWithItems", ctx, uint(1)).Return(adaptiveExam(), nil)
		f.repo.SubmissionRepo.On("GetServedItemIDs", ctx, uint(42)).Return([]uint{2}, nil)
		f.repo.AnswerRepo.On("HasAnswer", ctx, uint(42), uint(2)).Return(true, nil)

		_, err := f.service.SubmitAnswer(ctx, 42, 2, &AnswerPayload{Text: &answerText}, "student-1")
		assert.ErrorIs(t, err, ErrItemAlreadyAnswered)
		f.repo.AnswerRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("an unserved item is rejected", func(t *testing.T) {
		f := newSessionFixture()

		f.repo.SubmissionRepo.On("GetByID", ctx, uint(42)).Return(inProgressSubmission(), nil)
		f.repo.ExamRepo.On("GetByIDWithItems", ctx, uint(1)).Return(adaptiveExam(), nil)
		f.repo.SubmissionRepo.On("GetServedItemIDs", ctx, uint(42)).Return([]uint{2}, nil)

		_, err := f.service.SubmitAnswer(ctx, 42, 1, &AnswerPayload{Text: &answerText}, "student-1")
		assert.ErrorIs(t, err, ErrItemNotServed)
	})

	t.Run("an item outside the exam is rejected", func(t *testing.T) {
		f := newSessionFixture()

		f.repo.SubmissionRepo.On("GetByID", ctx, uint(42)).Return(inProgressSubmission(), nil)
		f.repo.ExamRepo.On("GetByIDWithItems", ctx, uint(1)).Return(adaptiveExam(), nil)

		_, err := f.service.SubmitAnswer(ctx, 42, 99, &AnswerPayload{Text: &answerText}, "student-1")
		assert.ErrorIs(t, err, ErrItemNotInExam)
	})

	t.Run("grader outage leaves no partial write", func(t *testing.T) {
		f := newSessionFixture()

		f.repo.SubmissionRepo.On("GetByID", ctx, uint(42)).Return(inProgressSubmission(), nil)
		f.repo.ExamRepo.On("GetByIDWithItems", ctx, uint(1)).Return(adaptiveExam(), nil)
		f.repo.SubmissionRepo.On("GetServedItemIDs", ctx, uint(42)).Return([]uint{2}, nil)
		f.repo.AnswerRepo.On("HasAnswer", ctx, uint(42), uint(2)).Return(false, nil)
		f.grader.On("Grade", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, grading.ErrUnavailable)

		_, err := f.service.SubmitAnswer(ctx, 42, 2, &AnswerPayload{Text: &answerText}, "student-1")
		assert.ErrorIs(t, err, ErrGradingUnavailable)
		f.repo.AnswerRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		f.repo.SubmissionRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
		assert.Empty(t, f.publisher.GetPublishedEvents())
	})

	t.Run("another student's submission is off limits", func(t *testing.T) {
		f := newSessionFixture()

		f.repo.SubmissionRepo.On("GetByID", ctx, uint(42)).Return(inProgressSubmission(), nil)

		_, err := f.service.SubmitAnswer(ctx, 42, 2, &AnswerPayload{Text: &answerText}, "student-2")
		var permErr *PermissionError
		assert.ErrorAs(t, err, &permErr)
	})

	t.Run("exhausting the pool completes the session", func(t *testing.T) {
		f := newSessionFixture()
		exam := adaptiveExam()
		exam.Items = exam.Items[:1] // single-item exam
		locked := inProgressSubmission()

		f.repo.SubmissionRepo.On("GetByID", ctx, uint(42)).Return(inProgressSubmission(), nil)
		f.repo.ExamRepo.On("GetByIDWithItems", ctx, uint(1)).Return(exam, nil)
		f.repo.SubmissionRepo.On("GetServedItemIDs", ctx, uint(42)).Return([]uint{1}, nil)
		f.repo.AnswerRepo.On("HasAnswer", ctx, uint(42), uint(1)).Return(false, nil)
		f.grader.On("Grade", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(&grading.Result{Score: 5, Feedback: grading.FeedbackCorrect}, nil)
		f.repo.SubmissionRepo.On("GetByIDForUpdate", ctx, uint(42)).Return(locked, nil)
		f.repo.AnswerRepo.On("Create", ctx, mock.AnythingOfType("*models.Answer")).Return(nil)
		f.repo.AnswerRepo.On("GetAnsweredItemIDs", ctx, uint(42)).Return([]uint{1}, nil)
		f.repo.AnswerRepo.On("GetBySubmission", ctx, uint(42)).
			Return([]*models.Answer{{SubmissionID: 42, ItemID: 1, CurrentScore: 5}}, nil)
		f.repo.SubmissionRepo.On("Update", ctx, locked).Return(nil)

		resp, err := f.service.SubmitAnswer(ctx, 42, 1, &AnswerPayload{Text: &answerText}, "student-1")
		require.NoError(t, err)
		assert.True(t, resp.Completed)
		require.NotNil(t, resp.TotalScore)
		assert.InDelta(t, 5.0, *resp.TotalScore, 1e-9)

		assert.Equal(t, models.SubmissionCompleted, locked.Status)
		require.NotNil(t, locked.EndReason)
		assert.Equal(t, models.EndReasonCompleted, *locked.EndReason)

		assert.Equal(t,
			[]events.EventType{events.EventAnswerGraded, events.EventSessionCompleted},
			f.eventTypes())
	})

	t.Run("ability after a full session equals the engine fold", func(t *testing.T) {
		f := newSessionFixture()
		exam := adaptiveExam()
		shared := inProgressSubmission()

		f.repo.SubmissionRepo.On("GetByID", ctx, uint(42)).Return(shared, nil)
		f.repo.SubmissionRepo.On("GetByIDForUpdate", ctx, uint(42)).Return(shared, nil)
		f.repo.ExamRepo.On("GetByIDWithItems", ctx, uint(1)).Return(exam, nil)
		f.repo.SubmissionRepo.On("GetServedItemIDs", ctx, uint(42)).Return([]uint{2}, nil).Once()
		f.repo.SubmissionRepo.On("GetServedItemIDs", ctx, uint(42)).Return([]uint{2, 3}, nil).Once()
		f.repo.SubmissionRepo.On("GetServedItemIDs", ctx, uint(42)).Return([]uint{2, 3, 1}, nil).Once()
		f.repo.AnswerRepo.On("HasAnswer", ctx, uint(42), mock.AnythingOfType("uint")).Return(false, nil)
		f.repo.SubmissionRepo.On("RecordServed", ctx, mock.AnythingOfType("*models.ServedItem")).Return(nil)
		f.repo.AnswerRepo.On("Create", ctx, mock.AnythingOfType("*models.Answer")).Return(nil)
		f.repo.SubmissionRepo.On("Update", ctx, shared).Return(nil)

		// Item 3 is missed, the others earn full credit.
		f.grader.On("Grade", mock.Anything, mock.MatchedBy(func(item *models.Item) bool {
			return item.ID == 3
		}), mock.Anything, mock.Anything).
			Return(&grading.Result{Score: 0, Feedback: grading.FeedbackIncorrect}, nil)
		f.grader.On("Grade", mock.Anything, mock.AnythingOfType("*models.Item"), mock.Anything, mock.Anything).
			Return(&grading.Result{Score: 5, Feedback: grading.FeedbackCorrect}, nil)

		f.repo.AnswerRepo.On("GetAnsweredItemIDs", ctx, uint(42)).Return([]uint{2, 3, 1}, nil)
		f.repo.AnswerRepo.On("GetBySubmission", ctx, uint(42)).Return([]*models.Answer{
			{SubmissionID: 42, ItemID: 2, CurrentScore: 5},
			{SubmissionID: 42, ItemID: 3, CurrentScore: 0},
			{SubmissionID: 42, ItemID: 1, CurrentScore: 5},
		}, nil)

		resp, err := f.service.SubmitAnswer(ctx, 42, 2, &AnswerPayload{Text: &answerText}, "student-1")
		require.NoError(t, err)
		require.NotNil(t, resp.NextItem)
		assert.Equal(t, uint(3), resp.NextItem.ID)

		resp, err = f.service.SubmitAnswer(ctx, 42, 3, &AnswerPayload{Text: &answerText}, "student-1")
		require.NoError(t, err)
		require.NotNil(t, resp.NextItem)
		assert.Equal(t, uint(1), resp.NextItem.ID)

		resp, err = f.service.SubmitAnswer(ctx, 42, 1, &AnswerPayload{Text: &answerText}, "student-1")
		require.NoError(t, err)
		assert.True(t, resp.Completed)
		require.NotNil(t, resp.TotalScore)
		assert.InDelta(t, 10.0, *resp.TotalScore, 1e-9)

		// Folding the same outcomes through the engine from the initial
		// ability reproduces the stored estimate exactly.
		engine := adaptive.NewEngine(config.DefaultPolicy())
		expected := engine.InitialAbility()
		for _, ratio := range []float64{1.0, 0.0, 1.0} {
			expected = engine.Update(expected, 0, ratio)
		}
		assert.InDelta(t, expected, shared.AbilityEstimate, 1e-9)
		assert.InDelta(t, 0.6, shared.AbilityEstimate, 1e-9)
	})
}

// ===== TIMEOUT =====

func TestSessionService_Timeout(t *testing.T) {
	ctx := context.Background()

	t.Run("rejected before the duration elapses", func(t *testing.T) {
		f := newSessionFixture()
		f.clock.now = testStart.Add(5 * time.Minute) // duration is 10 minutes

		f.repo.SubmissionRepo.On("GetByID", ctx, uint(42)).Return(inProgressSubmission(), nil)
		f.repo.ExamRepo.On("GetByIDWithItems", ctx, uint(1)).Return(adaptiveExam(), nil)

		_, err := f.service.Timeout(ctx, 42)
		assert.ErrorIs(t, err, ErrSessionNotExpired)
		// caller-state condition, must map to a conflict status not a 500
		assert.True(t, IsStateConflict(err))
	})

	t.Run("zero-scores served unanswered items after expiry", func(t *testing.T) {
		f := newSessionFixture()
		f.clock.now = testStart.Add(11 * time.Minute)
		locked := inProgressSubmission()

		var zeroed []*models.Answer
		f.repo.SubmissionRepo.On("GetByID", ctx, uint(42)).Return(inProgressSubmission(), nil)
		f.repo.ExamRepo.On("GetByIDWithItems", ctx, uint(1)).Return(adaptiveExam(), nil)
		f.repo.SubmissionRepo.On("GetByIDForUpdate", ctx, uint(42)).Return(locked, nil)
		f.repo.SubmissionRepo.On("GetServedItemIDs", ctx, uint(42)).Return([]uint{2, 3}, nil)
		f.repo.AnswerRepo.On("GetAnsweredItemIDs", ctx, uint(42)).Return([]uint{2}, nil)
		f.repo.AnswerRepo.On("Create", ctx, mock.AnythingOfType("*models.Answer")).
			Run(func(args mock.Arguments) {
				zeroed = append(zeroed, args.Get(1).(*models.Answer))
			}).Return(nil)
		f.repo.AnswerRepo.On("GetBySubmission", ctx, uint(42)).
			Return([]*models.Answer{
				{SubmissionID: 42, ItemID: 2, CurrentScore: 4},
				{SubmissionID: 42, ItemID: 3, CurrentScore: 0},
			}, nil)
		f.repo.SubmissionRepo.On("Update", ctx, locked).Return(nil)

		resp, err := f.service.Timeout(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, models.SubmissionCompleted, resp.Status)
		assert.InDelta(t, 4.0, resp.TotalScore, 1e-9)
		assert.Equal(t, models.EndReasonTimeout, resp.EndReason)

		// Item 3 was served but never answered.
		require.Len(t, zeroed, 1)
		assert.Equal(t, uint(3), zeroed[0].ItemID)
		assert.Zero(t, zeroed[0].CurrentScore)
		assert.Equal(t, grading.FeedbackNoAnswer, zeroed[0].FeedbackText)
	})

	t.Run("timeout after completion reports the standing result", func(t *testing.T) {
		f := newSessionFixture()
		completed := inProgressSubmission()
		completed.Status = models.SubmissionCompleted
		completed.TotalScore = 10
		reason := models.EndReasonFinished
		completed.EndReason = &reason

		f.repo.SubmissionRepo.On("GetByID", ctx, uint(42)).Return(completed, nil)
		f.repo.AnswerRepo.On("GetBySubmission", ctx, uint(42)).
			Return([]*models.Answer{{ItemID: 1}, {ItemID: 2}}, nil)

		resp, err := f.service.Timeout(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, models.SubmissionCompleted, resp.Status)
		assert.InDelta(t, 10.0, resp.TotalScore, 1e-9)
		assert.Equal(t, models.EndReasonFinished, resp.EndReason)
		f.repo.SubmissionRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})
}

// ===== PROCTORING =====

func TestSessionService_RecordInfraction(t *testing.T) {
	ctx := context.Background()

	t.Run("increments below the ceiling", func(t *testing.T) {
		f := newSessionFixture()
		locked := inProgressSubmission()
		locked.InfractionCount = 2

		f.repo.SubmissionRepo.On("GetByID", ctx, uint(42)).Return(inProgressSubmission(), nil)
		f.repo.ExamRepo.On("GetByIDWithItems", ctx, uint(1)).Return(adaptiveExam(), nil)
		f.repo.SubmissionRepo.On("GetByIDForUpdate", ctx, uint(42)).Return(locked, nil)
		f.repo.SubmissionRepo.On("Update", ctx, locked).Return(nil)

		resp, err := f.service.RecordInfraction(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, 3, resp.InfractionCount)
		assert.Equal(t, 5, resp.Ceiling)
		assert.False(t, resp.SessionEnded)

		assert.Equal(t, []events.EventType{events.EventProctoringViolation}, f.eventTypes())
	})

	t.Run("fifth infraction ends the session", func(t *testing.T) {
		f := newSessionFixture()
		locked := inProgressSubmission()
		locked.InfractionCount = 4

		f.repo.SubmissionRepo.On("GetByID", ctx, uint(42)).Return(inProgressSubmission(), nil)
		f.repo.ExamRepo.On("GetByIDWithItems", ctx, uint(1)).Return(adaptiveExam(), nil)
		f.repo.SubmissionRepo.On("GetByIDForUpdate", ctx, uint(42)).Return(locked, nil)
		f.repo.SubmissionRepo.On("GetServedItemIDs", ctx, uint(42)).Return([]uint{2}, nil)
		f.repo.AnswerRepo.On("GetAnsweredItemIDs", ctx, uint(42)).Return([]uint{2}, nil)
		f.repo.AnswerRepo.On("GetBySubmission", ctx, uint(42)).
			Return([]*models.Answer{{SubmissionID: 42, ItemID: 2, CurrentScore: 5}}, nil)
		f.repo.SubmissionRepo.On("Update", ctx, locked).Return(nil)

		resp, err := f.service.RecordInfraction(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, 5, resp.InfractionCount)
		assert.True(t, resp.SessionEnded)
		assert.Equal(t, models.SubmissionCompleted, locked.Status)
		require.NotNil(t, locked.EndReason)
		assert.Equal(t, models.EndReasonProctoring, *locked.EndReason)

		assert.Equal(t,
			[]events.EventType{events.EventProctoringViolation, events.EventSessionCompleted},
			f.eventTypes())
	})

	t.Run("infraction on a terminal session is a no-op", func(t *testing.T) {
		f := newSessionFixture()
		completed := inProgressSubmission()
		completed.Status = models.SubmissionCompleted
		completed.InfractionCount = 5

		f.repo.SubmissionRepo.On("GetByID", ctx, uint(42)).Return(completed, nil)
		f.repo.ExamRepo.On("GetByIDWithItems", ctx, uint(1)).Return(adaptiveExam(), nil)
		f.repo.SubmissionRepo.On("GetByIDForUpdate", ctx, uint(42)).Return(completed, nil)

		resp, err := f.service.RecordInfraction(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, 5, resp.InfractionCount)
		assert.True(t, resp.SessionEnded)
		f.repo.SubmissionRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})
}

// ===== FINISH =====

func TestSessionService_Finish(t *testing.T) {
	ctx := context.Background()

	t.Run("completes an in-progress session at the student's request", func(t *testing.T) {
		f := newSessionFixture()
		locked := inProgressSubmission()

		f.repo.SubmissionRepo.On("GetByID", ctx, uint(42)).Return(inProgressSubmission(), nil)
		f.repo.ExamRepo.On("GetByIDWithItems", ctx, uint(1)).Return(adaptiveExam(), nil)
		f.repo.SubmissionRepo.On("GetByIDForUpdate", ctx, uint(42)).Return(locked, nil)
		f.repo.SubmissionRepo.On("GetServedItemIDs", ctx, uint(42)).Return([]uint{2}, nil)
		f.repo.AnswerRepo.On("GetAnsweredItemIDs", ctx, uint(42)).Return([]uint{2}, nil)
		f.repo.AnswerRepo.On("GetBySubmission", ctx, uint(42)).
			Return([]*models.Answer{{SubmissionID: 42, ItemID: 2, CurrentScore: 5}}, nil)
		f.repo.SubmissionRepo.On("Update", ctx, locked).Return(nil)

		resp, err := f.service.Finish(ctx, 42, "student-1")
		require.NoError(t, err)
		assert.Equal(t, models.SubmissionCompleted, resp.Status)
		assert.Equal(t, models.EndReasonFinished, resp.EndReason)
		assert.InDelta(t, 5.0, resp.TotalScore, 1e-9)
	})

	t.Run("finishing twice reports the standing result", func(t *testing.T) {
		f := newSessionFixture()
		completed := inProgressSubmission()
		completed.Status = models.SubmissionCompleted
		completed.TotalScore = 5
		reason := models.EndReasonFinished
		completed.EndReason = &reason

		f.repo.SubmissionRepo.On("GetByID", ctx, uint(42)).Return(completed, nil)
		f.repo.ExamRepo.On("GetByIDWithItems", ctx, uint(1)).Return(adaptiveExam(), nil)
		f.repo.AnswerRepo.On("GetBySubmission", ctx, uint(42)).
			Return([]*models.Answer{{ItemID: 2}}, nil)

		resp, err := f.service.Finish(ctx, 42, "student-1")
		require.NoError(t, err)
		assert.Equal(t, models.SubmissionCompleted, resp.Status)
		assert.InDelta(t, 5.0, resp.TotalScore, 1e-9)
		f.repo.SubmissionRepo.AssertNotCalled(t, "GetByIDForUpdate", mock.Anything, mock.Anything)
	})
}

// ===== SKIP =====

func TestSessionService_SkipAnswer(t *testing.T) {
	ctx := context.Background()

	t.Run("records a zero-point answer without grading", func(t *testing.T) {
		f := newSessionFixture()
		exam := adaptiveExam()
		locked := inProgressSubmission()

		var created *models.Answer
		f.repo.SubmissionRepo.On("GetByID", ctx, uint(42)).Return(inProgressSubmission(), nil)
		f.repo.ExamRepo.On("GetByIDWithItems", ctx, uint(1)).Return(exam, nil)
		f.repo.SubmissionRepo.On("GetServedItemIDs", ctx, uint(42)).Return([]uint{2}, nil)
		f.repo.AnswerRepo.On("HasAnswer", ctx, uint(42), uint(2)).Return(false, nil)
		f.repo.SubmissionRepo.On("GetByIDForUpdate", ctx, uint(42)).Return(locked, nil)
		f.repo.AnswerRepo.On("Create", ctx, mock.AnythingOfType("*models.Answer")).
			Run(func(args mock.Arguments) {
				created = args.Get(1).(*models.Answer)
			}).Return(nil)
		f.repo.SubmissionRepo.On("RecordServed", ctx, mock.AnythingOfType("*models.ServedItem")).Return(nil)
		f.repo.SubmissionRepo.On("Update", ctx, locked).Return(nil)

		resp, err := f.service.SkipAnswer(ctx, 42, 2, "student-1")
		require.NoError(t, err)
		assert.Zero(t, resp.Score)
		assert.Equal(t, grading.FeedbackSkipped, resp.Feedback)
		require.NotNil(t, created)
		assert.Zero(t, created.CurrentScore)

		// Skips count as failures; ability drops to 0.4 and the easier
		// difficulty-0.3 item is served next.
		require.NotNil(t, resp.NextItem)
		assert.Equal(t, uint(1), resp.NextItem.ID)
		f.grader.AssertNotCalled(t, "Grade", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
