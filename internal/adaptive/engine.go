// Package adaptive selects the next exam item from observed performance.
// It is a lightweight proxy for IRT-style adaptation: the running ability
// estimate moves in fixed steps and the closest-difficulty item wins, so
// behavior stays deterministic and testable without per-item calibration.
package adaptive

import (
	"math"

	"github.com/adaptix-edu/exam-service/internal/config"
	"github.com/adaptix-edu/exam-service/internal/models"
)

// Engine picks the next item for a submission and updates the running
// ability estimate after each response.
type Engine interface {
	// SelectNext returns the unserved item whose difficulty is closest to
	// ability, ties broken by lowest item ID. Nil means the pool is
	// exhausted and the session is complete.
	SelectNext(pool []*models.Item, served map[uint]bool, ability float64) *models.Item

	// Update folds one response into the ability estimate. scoreRatio is
	// the achieved fraction of the item's points.
	Update(ability, itemDifficulty, scoreRatio float64) float64

	// InitialAbility is the estimate assigned to a fresh submission.
	InitialAbility() float64
}

type engine struct {
	policy config.Policy
}

func NewEngine(policy config.Policy) Engine {
	return &engine{policy: policy}
}

func (e *engine) SelectNext(pool []*models.Item, served map[uint]bool, ability float64) *models.Item {
	var best *models.Item
	bestDistance := math.Inf(1)

	for _, item := range pool {
		if served[item.ID] {
			continue
		}
		distance := math.Abs(item.Difficulty - ability)
		if distance < bestDistance || (distance == bestDistance && best != nil && item.ID < best.ID) {
			best = item
			bestDistance = distance
		}
	}

	return best
}

func (e *engine) Update(ability, itemDifficulty, scoreRatio float64) float64 {
	if scoreRatio >= e.policy.CorrectThreshold {
		return math.Min(e.policy.AbilityMax, ability+e.policy.AbilityStep)
	}
	return math.Max(e.policy.AbilityMin, ability-e.policy.AbilityStep)
}

func (e *engine) InitialAbility() float64 {
	return e.policy.InitialAbility
}

// FixedOrderEngine serves items in their stored position order and leaves
// the ability estimate untouched. It backs exams with adaptive_enabled
// turned off.
type FixedOrderEngine struct {
	initial float64
}

func NewFixedOrderEngine(policy config.Policy) *FixedOrderEngine {
	return &FixedOrderEngine{initial: policy.InitialAbility}
}

func (f *FixedOrderEngine) SelectNext(pool []*models.Item, served map[uint]bool, ability float64) *models.Item {
	var best *models.Item
	for _, item := range pool {
		if served[item.ID] {
			continue
		}
		if best == nil ||
			item.Position < best.Position ||
			(item.Position == best.Position && item.ID < best.ID) {
			best = item
		}
	}
	return best
}

func (f *FixedOrderEngine) Update(ability, itemDifficulty, scoreRatio float64) float64 {
	return ability
}

func (f *FixedOrderEngine) InitialAbility() float64 {
	return f.initial
}
