// Package grading scores submitted answers. Multiple-choice items are
// compared against the correct key; free-text items are scored by semantic
// similarity against the item's reference answer, optionally after OCR of
// an uploaded image. Scoring uses coarse similarity bands rather than a
// linear scale: continuous similarity is noisy near decision boundaries,
// so banding reduces sensitivity to embedding-model variance.
package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adaptix-edu/exam-service/internal/ai"
	"github.com/adaptix-edu/exam-service/internal/config"
	"github.com/adaptix-edu/exam-service/internal/models"
)

var (
	// ErrEmptyAnswer means the resolved answer text was empty or
	// whitespace-only. The caller records a zero-point answer without
	// invoking the embedding comparison.
	ErrEmptyAnswer = errors.New("answer is empty")

	// ErrUnavailable wraps transient embedding/OCR failures. Nothing was
	// persisted; the identical call is safe to retry.
	ErrUnavailable = errors.New("grading temporarily unavailable")
)

const (
	FeedbackCorrect   = "Correct"
	FeedbackIncorrect = "Incorrect"
	FeedbackStrong    = "Strong match with expected answer"
	FeedbackPartial   = "Partial match with expected answer"
	FeedbackLimited   = "Limited match with expected answer"
	FeedbackNoMatch   = "No match with expected answer"
	FeedbackNoAnswer  = "No answer provided"
	FeedbackSkipped   = "Question skipped"
)

// Result is the outcome of grading one answer. The grader has no side
// effects; persisting the result into the Answer record is the session
// state machine's job.
type Result struct {
	Score         float64
	Feedback      string
	Similarity    *float64 // nil for multiple choice
	ExtractedText string   // populated only when OCR ran
	Flagged       bool     // plagiarism suspicion, never affects Score
}

// Grader scores one submitted answer against its item.
type Grader interface {
	Grade(ctx context.Context, item *models.Item, submittedText *string, submittedImage []byte) (*Result, error)
}

type grader struct {
	embeddings ai.EmbeddingClient
	ocr        ai.OCRClient
	policy     config.Policy
	timeout    time.Duration
	logger     *slog.Logger
}

func NewGrader(embeddings ai.EmbeddingClient, ocr ai.OCRClient, policy config.Policy, timeout time.Duration, logger *slog.Logger) Grader {
	return &grader{
		embeddings: embeddings,
		ocr:        ocr,
		policy:     policy,
		timeout:    timeout,
		logger:     logger,
	}
}

func (g *grader) Grade(ctx context.Context, item *models.Item, submittedText *string, submittedImage []byte) (*Result, error) {
	switch item.Kind {
	case models.ItemMultipleChoice:
		return g.gradeMultipleChoice(item, submittedText), nil
	case models.ItemFreeText:
		return g.gradeFreeText(ctx, item, submittedText, submittedImage)
	default:
		return nil, fmt.Errorf("unknown item kind %q for item %d", item.Kind, item.ID)
	}
}

func (g *grader) gradeMultipleChoice(item *models.Item, submittedText *string) *Result {
	var choice string
	if submittedText != nil {
		choice = strings.TrimSpace(*submittedText)
	}

	correct := item.CorrectChoice != nil &&
		strings.EqualFold(choice, strings.TrimSpace(*item.CorrectChoice))

	if correct {
		return &Result{Score: float64(item.Points), Feedback: FeedbackCorrect}
	}
	return &Result{Score: 0, Feedback: FeedbackIncorrect}
}

func (g *grader) gradeFreeText(ctx context.Context, item *models.Item, submittedText *string, submittedImage []byte) (*Result, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var extracted string
	if len(submittedImage) > 0 {
		text, err := g.ocr.ExtractText(ctx, submittedImage)
		if err != nil {
			g.logger.Warn("OCR extraction failed", "item_id", item.ID, "error", err)
			return nil, fmt.Errorf("%w: ocr: %v", ErrUnavailable, err)
		}
		extracted = strings.TrimSpace(text)
	}

	// Grade the OCR text when it produced anything, otherwise fall back
	// to the raw text payload.
	resolved := extracted
	if resolved == "" && submittedText != nil {
		resolved = strings.TrimSpace(*submittedText)
	}
	if resolved == "" {
		return nil, ErrEmptyAnswer
	}

	reference := ""
	if item.ReferenceAnswer != nil {
		reference = strings.TrimSpace(*item.ReferenceAnswer)
	}
	if reference == "" {
		return nil, fmt.Errorf("item %d has no reference answer", item.ID)
	}

	similarity, err := g.embeddings.Similarity(ctx, resolved, reference)
	if err != nil {
		g.logger.Warn("similarity computation failed", "item_id", item.ID, "error", err)
		return nil, fmt.Errorf("%w: embedding: %v", ErrUnavailable, err)
	}

	ratio, feedback := g.tierFor(similarity)

	result := &Result{
		Score:         ratio * float64(item.Points),
		Feedback:      feedback,
		Similarity:    &similarity,
		ExtractedText: extracted,
	}

	// Near-exact duplication of a long reference answer is suspicious
	// enough to surface for human review. The flag never changes the score.
	if similarity > g.policy.PlagiarismSimilarity && len(reference) >= g.policy.PlagiarismMinRefLen {
		result.Flagged = true
	}

	return result, nil
}

// tierFor maps similarity to a score fraction using strict lower bounds.
func (g *grader) tierFor(similarity float64) (float64, string) {
	switch {
	case similarity > g.policy.TierFull:
		return 1.0, FeedbackStrong
	case similarity > g.policy.TierHigh:
		return 0.8, FeedbackPartial
	case similarity > g.policy.TierPartial:
		return 0.4, FeedbackLimited
	default:
		return 0, FeedbackNoMatch
	}
}
