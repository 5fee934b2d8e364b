package reward

import mrand "math/rand/v2"

type ChestKind string

const (
	ChestGold       ChestKind = "gold"
	ChestNothing    ChestKind = "nothing"
	ChestLoseGold   ChestKind = "lose_gold"
	ChestMultiplier ChestKind = "multiplier"
	ChestSwap       ChestKind = "swap"
	ChestSteal      ChestKind = "steal"
)

// ChestTable is the loot distribution, in percent.
var ChestTable = []Weighted[ChestKind]{
	{ChestGold, 40},
	{ChestNothing, 10},
	{ChestLoseGold, 15},
	{ChestMultiplier, 15},
	{ChestSwap, 5},
	{ChestSteal, 15},
}

var (
	GoldAmounts      = []int{10, 20, 30, 40, 50, 75, 100}
	LoseGoldPercents = []int{10, 25, 50}
	Multipliers      = []int{2, 3}
)

// StealPercent of the victim's gold moves to the thief.
const StealPercent = 25

// Chest is a drawn chest outcome. Amount is the base gold for ChestGold,
// Percent the loss for ChestLoseGold and Multiplier the factor for ChestMultiplier.
type Chest struct {
	Kind       ChestKind `json:"kind"`
	Amount     int       `json:"amount,omitempty"`
	Percent    int       `json:"percent,omitempty"`
	Multiplier int       `json:"multiplier,omitempty"`
}

// Interactive reports whether the chest needs a target before it resolves.
func (c Chest) Interactive() bool {
	return c.Kind == ChestSwap || c.Kind == ChestSteal
}

func DrawChest(rng *mrand.Rand) Chest {
	chest := Chest{Kind: Pick(rng, ChestTable)}
	switch chest.Kind {
	case ChestGold:
		chest.Amount = pickInt(rng, GoldAmounts)
	case ChestLoseGold:
		chest.Percent = pickInt(rng, LoseGoldPercents)
	case ChestMultiplier:
		chest.Multiplier = pickInt(rng, Multipliers)
	}
	return chest
}

// PercentOf returns floor(amount * percent / 100), never negative.
func PercentOf(amount, percent int) int {
	if amount <= 0 || percent <= 0 {
		return 0
	}
	if percent >= 100 {
		return amount
	}
	return amount * percent / 100
}

// StealAmount is the share of victimGold a steal transfers.
func StealAmount(victimGold int) int {
	return PercentOf(victimGold, StealPercent)
}
