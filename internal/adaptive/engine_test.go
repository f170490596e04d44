package adaptive

import (
	"testing"

	"github.com/adaptix-edu/exam-service/internal/config"
	"github.com/adaptix-edu/exam-service/internal/models"
	"github.com/stretchr/testify/assert"
)

func poolOf(items ...models.Item) []*models.Item {
	pool := make([]*models.Item, len(items))
	for i := range items {
		pool[i] = &items[i]
	}
	return pool
}

func TestEngine_SelectNext(t *testing.T) {
	engine := NewEngine(config.DefaultPolicy())

	t.Run("picks closest difficulty", func(t *testing.T) {
		pool := poolOf(
			models.Item{ID: 1, Difficulty: 0.2},
			models.Item{ID: 2, Difficulty: 0.5},
			models.Item{ID: 3, Difficulty: 0.9},
		)

		next := engine.SelectNext(pool, map[uint]bool{}, 0.55)
		assert.NotNil(t, next)
		assert.Equal(t, uint(2), next.ID)
	})

	t.Run("ties broken by lowest id", func(t *testing.T) {
		pool := poolOf(
			models.Item{ID: 7, Difficulty: 0.4},
			models.Item{ID: 3, Difficulty: 0.6},
		)

		// Both are 0.1 away from 0.5.
		next := engine.SelectNext(pool, map[uint]bool{}, 0.5)
		assert.NotNil(t, next)
		assert.Equal(t, uint(3), next.ID)
	})

	t.Run("skips served items", func(t *testing.T) {
		pool := poolOf(
			models.Item{ID: 1, Difficulty: 0.5},
			models.Item{ID: 2, Difficulty: 0.3},
		)

		next := engine.SelectNext(pool, map[uint]bool{1: true}, 0.5)
		assert.NotNil(t, next)
		assert.Equal(t, uint(2), next.ID)
	})

	t.Run("nil only when pool exhausted", func(t *testing.T) {
		pool := poolOf(
			models.Item{ID: 1, Difficulty: 0.5},
			models.Item{ID: 2, Difficulty: 0.3},
		)

		next := engine.SelectNext(pool, map[uint]bool{1: true, 2: true}, 0.5)
		assert.Nil(t, next)
	})

	t.Run("deterministic for identical inputs", func(t *testing.T) {
		pool := poolOf(
			models.Item{ID: 5, Difficulty: 0.45},
			models.Item{ID: 9, Difficulty: 0.55},
			models.Item{ID: 2, Difficulty: 0.55},
		)

		first := engine.SelectNext(pool, map[uint]bool{}, 0.5)
		for i := 0; i < 10; i++ {
			again := engine.SelectNext(pool, map[uint]bool{}, 0.5)
			assert.Equal(t, first.ID, again.ID)
		}
	})
}

func TestEngine_Update(t *testing.T) {
	engine := NewEngine(config.DefaultPolicy())

	t.Run("raises ability on success", func(t *testing.T) {
		assert.InDelta(t, 0.6, engine.Update(0.5, 0.5, 1.0), 1e-9)
	})

	t.Run("threshold ratio counts as success", func(t *testing.T) {
		assert.InDelta(t, 0.6, engine.Update(0.5, 0.5, 0.6), 1e-9)
	})

	t.Run("lowers ability on failure", func(t *testing.T) {
		assert.InDelta(t, 0.4, engine.Update(0.5, 0.5, 0.0), 1e-9)
		assert.InDelta(t, 0.4, engine.Update(0.5, 0.5, 0.59), 1e-9)
	})

	t.Run("clamps at upper bound", func(t *testing.T) {
		assert.InDelta(t, 1.0, engine.Update(1.0, 0.5, 1.0), 1e-9)
		assert.InDelta(t, 1.0, engine.Update(0.95, 0.5, 1.0), 1e-9)
	})

	t.Run("clamps at lower bound", func(t *testing.T) {
		assert.InDelta(t, 0.1, engine.Update(0.1, 0.5, 0.0), 1e-9)
		assert.InDelta(t, 0.1, engine.Update(0.15, 0.5, 0.0), 1e-9)
	})

	t.Run("folding a response sequence is deterministic", func(t *testing.T) {
		ratios := []float64{1.0, 0.6, 0.2, 1.0, 0.0, 1.0}

		fold := func() float64 {
			ability := engine.InitialAbility()
			for _, r := range ratios {
				ability = engine.Update(ability, 0.5, r)
			}
			return ability
		}

		// 0.5 +0.1 +0.1 -0.1 +0.1 -0.1 +0.1
		first := fold()
		assert.InDelta(t, 0.7, first, 1e-9)
		for i := 0; i < 10; i++ {
			assert.InDelta(t, first, fold(), 1e-9)
		}
	})
}

func TestEngine_InitialAbility(t *testing.T) {
	engine := NewEngine(config.DefaultPolicy())
	assert.InDelta(t, 0.5, engine.InitialAbility(), 1e-9)
}

func TestFixedOrderEngine(t *testing.T) {
	engine := NewFixedOrderEngine(config.DefaultPolicy())

	t.Run("serves by position", func(t *testing.T) {
		pool := poolOf(
			models.Item{ID: 1, Position: 3},
			models.Item{ID: 2, Position: 1},
			models.Item{ID: 3, Position: 2},
		)

		served := map[uint]bool{}
		var order []uint
		for {
			next := engine.SelectNext(pool, served, 0.5)
			if next == nil {
				break
			}
			order = append(order, next.ID)
			served[next.ID] = true
		}
		assert.Equal(t, []uint{2, 3, 1}, order)
	})

	t.Run("update is a no-op", func(t *testing.T) {
		assert.InDelta(t, 0.7, engine.Update(0.7, 0.2, 0.0), 1e-9)
	})
}
