package game

import (
	mrand "math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/quizblitz/live-server/internal/errors"
	"github.com/quizblitz/live-server/internal/model"
	"github.com/quizblitz/live-server/internal/reward"
)

func fixedChest(chest reward.Chest) func(*mrand.Rand) reward.Chest {
	return func(*mrand.Rand) reward.Chest { return chest }
}

func startedGold(t *testing.T, settings model.Settings, names ...string) (*harness, []*Player) {
	t.Helper()
	h := newHarness(t, model.ModeGoldQuest, settings)
	players := make([]*Player, len(names))
	for i, name := range names {
		players[i] = h.join(t, name)
	}
	require.NoError(t, h.s.Start())
	return h, players
}

func TestGoldAnswer(t *testing.T) {
	h, players := startedGold(t, timeSettings(), "Ada")
	p := players[0]

	t.Run("correct answer earns a chest", func(t *testing.T) {
		h.answer(t, p, true)
		assert.True(t, p.Gold.ChestReady)
		assert.Equal(t, 1, p.Gold.Streak)
		assert.Equal(t, 1, p.CorrectCount)
		assert.Empty(t, p.CurrentQuestion)
	})

	t.Run("request re-sends the chest instead of a question", func(t *testing.T) {
		h.out.reset()
		require.NoError(t, h.event(EventRequestQuestion, "", p.Handle))
		assert.Empty(t, h.out.named(EventQuestionServed))
		assert.Len(t, h.out.named(EventChestReady), 1)
	})

	t.Run("wrong answer resets the streak", func(t *testing.T) {
		p.Gold.ChestReady = false
		h.answer(t, p, false)
		assert.False(t, p.Gold.ChestReady)
		assert.Equal(t, 0, p.Gold.Streak)
		assert.Equal(t, 1, p.IncorrectCount)
	})
}

func TestOpenChest(t *testing.T) {
	t.Run("gold is multiplied and the multiplier resets", func(t *testing.T) {
		h, players := startedGold(t, timeSettings(), "Ada")
		p := players[0]
		h.s.tables.chest = fixedChest(reward.Chest{Kind: reward.ChestGold, Amount: 40})
		p.Gold.Gold = 5
		p.Gold.Multiplier = 2
		p.Gold.ChestReady = true

		require.NoError(t, h.event(EventOpenChest, "", p.Handle))
		assert.Equal(t, 85, p.Gold.Gold)
		assert.Equal(t, 1, p.Gold.Multiplier)
		assert.False(t, p.Gold.ChestReady)
	})

	t.Run("requires an earned chest", func(t *testing.T) {
		h, players := startedGold(t, timeSettings(), "Ada")
		err := h.event(EventOpenChest, "", players[0].Handle)
		assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetCode(err))
	})

	t.Run("only while playing", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		p := h.join(t, "Ada")
		p.Gold.ChestReady = true
		err := h.event(EventOpenChest, "", p.Handle)
		assert.Equal(t, apperrors.ErrCodeWrongPhase, apperrors.GetCode(err))
	})

	t.Run("one chest per correct answer", func(t *testing.T) {
		h, players := startedGold(t, timeSettings(), "Ada")
		p := players[0]
		h.s.tables.chest = fixedChest(reward.Chest{Kind: reward.ChestGold, Amount: 10})
		p.Gold.ChestReady = true

		require.NoError(t, h.event(EventOpenChest, "", p.Handle))
		assert.Error(t, h.event(EventOpenChest, "", p.Handle))
		assert.Equal(t, 10, p.Gold.Gold)
	})

	t.Run("lose gold never goes below zero", func(t *testing.T) {
		for _, start := range []int{0, 1, 3, 7, 99, 100, 1001} {
			for _, pct := range reward.LoseGoldPercents {
				h, players := startedGold(t, timeSettings(), "Ada")
				p := players[0]
				h.s.tables.chest = fixedChest(reward.Chest{Kind: reward.ChestLoseGold, Percent: pct})
				p.Gold.Gold = start
				p.Gold.ChestReady = true

				require.NoError(t, h.s.OpenChest(p))
				assert.GreaterOrEqual(t, p.Gold.Gold, 0)
				assert.Equal(t, start-start*pct/100, p.Gold.Gold)
			}
		}
	})

	t.Run("multiplier sets rather than stacks", func(t *testing.T) {
		h, players := startedGold(t, timeSettings(), "Ada")
		p := players[0]
		h.s.tables.chest = fixedChest(reward.Chest{Kind: reward.ChestMultiplier, Multiplier: 2})
		p.Gold.Multiplier = 3
		p.Gold.ChestReady = true

		require.NoError(t, h.s.OpenChest(p))
		assert.Equal(t, 2, p.Gold.Multiplier)
	})

	t.Run("reward is revealed after the delay", func(t *testing.T) {
		h, players := startedGold(t, timeSettings(), "Ada")
		p := players[0]
		h.s.tables.chest = fixedChest(reward.Chest{Kind: reward.ChestNothing})
		p.Gold.ChestReady = true

		require.NoError(t, h.s.OpenChest(p))
		assert.Empty(t, h.out.named(EventRewardRevealed))
		require.Len(t, h.sched.pending, 1)
		assert.Equal(t, h.s.deps.RevealDelay, h.sched.pending[0].Delay)

		h.sched.flush(h.s)
		revealed, ok := h.out.last(EventRewardRevealed)
		require.True(t, ok)
		assert.Equal(t, p.Handle, revealed.Handle)
	})

	t.Run("interactive chests wait for a target", func(t *testing.T) {
		h, players := startedGold(t, timeSettings(), "Ada", "Bob")
		p := players[0]
		h.s.tables.chest = fixedChest(reward.Chest{Kind: reward.ChestSteal})
		p.Gold.ChestReady = true

		require.NoError(t, h.s.OpenChest(p))
		assert.Equal(t, reward.ChestSteal, p.Gold.PendingInteraction)
		_, ok := h.out.last(EventChooseTarget)
		assert.True(t, ok)

		h.out.reset()
		require.NoError(t, h.event(EventRequestQuestion, "", p.Handle))
		assert.Empty(t, h.out.named(EventQuestionServed))
		assert.Len(t, h.out.named(EventChooseTarget), 1)
	})
}

func TestResolveInteraction(t *testing.T) {
	t.Run("swap exchanges balances", func(t *testing.T) {
		h, players := startedGold(t, timeSettings(), "Ada", "Bob")
		ada, bob := players[0], players[1]
		ada.Gold.Gold, bob.Gold.Gold = 10, 200
		ada.Gold.PendingInteraction = reward.ChestSwap

		require.NoError(t, h.event(EventResolveInteraction, `{"target":"Bob"}`, ada.Handle))
		assert.Equal(t, 200, ada.Gold.Gold)
		assert.Equal(t, 10, bob.Gold.Gold)
		assert.Empty(t, ada.Gold.PendingInteraction)

		feed, ok := h.out.last(EventInteractionOccurred)
		require.True(t, ok)
		assert.Equal(t, "123456", feed.Room)
		payload := feed.Payload.(map[string]any)
		assert.Equal(t, "Ada", payload["source"])
		assert.Equal(t, "Bob", payload["target"])
		assert.Equal(t, reward.ChestSwap, payload["kind"])
	})

	t.Run("steal moves a quarter of the victim's gold", func(t *testing.T) {
		h, players := startedGold(t, timeSettings(), "Ada", "Bob")
		ada, bob := players[0], players[1]
		ada.Gold.Gold, bob.Gold.Gold = 0, 101
		ada.Gold.PendingInteraction = reward.ChestSteal

		require.NoError(t, h.s.ResolveInteraction(ada, "Bob", reward.ChestSteal))
		assert.Equal(t, 25, ada.Gold.Gold)
		assert.Equal(t, 76, bob.Gold.Gold)

		updates := h.out.named(EventGoldUpdated)
		handles := []string{}
		for _, u := range updates {
			handles = append(handles, u.Handle)
		}
		assert.ElementsMatch(t, []string{ada.Handle, bob.Handle}, handles)
	})

	t.Run("cannot be resolved twice", func(t *testing.T) {
		h, players := startedGold(t, timeSettings(), "Ada", "Bob")
		ada := players[0]
		ada.Gold.PendingInteraction = reward.ChestSteal

		require.NoError(t, h.s.ResolveInteraction(ada, "Bob", ""))
		assert.Error(t, h.s.ResolveInteraction(ada, "Bob", ""))
	})

	t.Run("validates the target", func(t *testing.T) {
		h, players := startedGold(t, timeSettings(), "Ada", "Bob")
		ada := players[0]
		ada.Gold.PendingInteraction = reward.ChestSwap

		err := h.s.ResolveInteraction(ada, "Zed", "")
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
		err = h.s.ResolveInteraction(ada, "Ada", "")
		assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetCode(err))
		err = h.s.ResolveInteraction(ada, "Bob", reward.ChestSteal)
		assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetCode(err))
		assert.Equal(t, reward.ChestSwap, ada.Gold.PendingInteraction)
	})
}

func TestGoldGoalEndToEnd(t *testing.T) {
	h, players := startedGold(t, goalSettings(500), "Ada", "Bob")
	ada := players[0]
	h.s.tables.chest = fixedChest(reward.Chest{Kind: reward.ChestGold, Amount: 75})

	for ada.Gold.Gold < 500 {
		h.answer(t, ada, true)
		require.NoError(t, h.event(EventOpenChest, "", ada.Handle))
		assert.Equal(t, model.StatusPlaying, h.s.Status)
	}

	h.s.Tick()
	assert.Equal(t, model.StatusEnded, h.s.Status)

	ended, ok := h.out.last(EventSessionEnded)
	require.True(t, ok)
	ranking := ended.Payload.(map[string]any)["ranking"].([]Standing)
	require.Len(t, ranking, 2)
	assert.Equal(t, "Ada", ranking[0].Name)
	assert.Equal(t, ada.Gold.Gold, ranking[0].Score)
}
