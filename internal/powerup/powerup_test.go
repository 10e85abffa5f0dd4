package powerup

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizlive/internal/domain"
	"quizlive/internal/protocol"
)

var mc4 = Context{QuestionType: domain.MultipleChoice, VisibleOptions: 4, TimerRunning: true}

func TestEachPowerUpIsSingleUse(t *testing.T) {
	inv := NewInventory()
	for _, pt := range protocol.PowerUpTypes {
		require.NoError(t, inv.Use(pt, mc4), pt)
		assert.ErrorIs(t, inv.Use(pt, mc4), ErrUsed, pt)
	}
}

func TestFiftyFiftyRequiresFourChoiceOptions(t *testing.T) {
	inv := NewInventory()
	assert.ErrorIs(t, inv.Use(protocol.PowerUpFiftyFifty, Context{QuestionType: domain.MultipleChoice, VisibleOptions: 3}), ErrUnavailable)
	assert.ErrorIs(t, inv.Use(protocol.PowerUpFiftyFifty, Context{QuestionType: domain.MultipleCorrect, VisibleOptions: 4}), ErrUnavailable)
	assert.False(t, inv.Used(protocol.PowerUpFiftyFifty))
	assert.NoError(t, inv.Use(protocol.PowerUpFiftyFifty, mc4))
}

func TestExtendIsNoOpUnlessRunning(t *testing.T) {
	inv := NewInventory()
	err := inv.Use(protocol.PowerUpExtendTime, Context{QuestionType: domain.Numeric})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, inv.Used(protocol.PowerUpExtendTime))
}

func TestDoublePointsAffectsExactlyOneScoringEvent(t *testing.T) {
	inv := NewInventory()
	assert.Equal(t, 100, inv.ApplyScore(100))

	require.NoError(t, inv.Use(protocol.PowerUpDoublePoints, mc4))
	assert.True(t, inv.Armed())
	// consumed even when nothing was earned
	assert.Equal(t, 0, inv.ApplyScore(0))
	assert.False(t, inv.Armed())
	assert.Equal(t, 100, inv.ApplyScore(100))
}

func TestRefundRestoresSlot(t *testing.T) {
	inv := NewInventory()
	require.NoError(t, inv.Use(protocol.PowerUpDoublePoints, mc4))
	inv.Refund(protocol.PowerUpDoublePoints)
	assert.False(t, inv.Armed())
	assert.NoError(t, inv.Use(protocol.PowerUpDoublePoints, mc4))
}

func TestUnknownPowerUp(t *testing.T) {
	assert.ErrorIs(t, NewInventory().Use("freeze", mc4), ErrUnknown)
}

func TestSlots(t *testing.T) {
	inv := NewInventory()
	require.NoError(t, inv.Use(protocol.PowerUpExtendTime, mc4))
	slots := inv.Slots(Context{QuestionType: domain.TrueFalse, VisibleOptions: 2, TimerRunning: true})
	require.Len(t, slots, 3)
	assert.False(t, slots[0].Available)
	assert.True(t, slots[1].Used)
	assert.True(t, slots[2].Available)
}

func TestHideWrongNeverHidesCorrect(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for n := 4; n <= 8; n++ {
		visible := make([]int, n)
		for i := range visible {
			visible[i] = i
		}
		for correct := 0; correct < n; correct++ {
			for trial := 0; trial < 20; trial++ {
				hidden := HideWrong(rnd, visible, correct)
				assert.Len(t, hidden, n/2)
				assert.NotContains(t, hidden, correct)
			}
		}
	}
}

func TestHideWrongIsUniform(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	counts := map[int]int{}
	for i := 0; i < 3000; i++ {
		for _, h := range HideWrong(rnd, []int{0, 1, 2, 3}, 1) {
			counts[h]++
		}
	}
	assert.Zero(t, counts[1])
	for _, i := range []int{0, 2, 3} {
		// each wrong option is hidden in two thirds of the draws
		assert.InDelta(t, 2000, counts[i], 150)
	}
}
