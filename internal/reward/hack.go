package reward

import (
	"math"
	mrand "math/rand/v2"
)

type ChoiceKind string

const (
	ChoiceCrypto   ChoiceKind = "crypto"
	ChoiceMultiply ChoiceKind = "multiply"
	ChoiceHack     ChoiceKind = "hack"
	ChoiceNothing  ChoiceKind = "nothing"
)

// ChoiceTable weights the face-down data packets, most likely first.
var ChoiceTable = []Weighted[ChoiceKind]{
	{ChoiceCrypto, 50},
	{ChoiceMultiply, 25},
	{ChoiceHack, 15},
	{ChoiceNothing, 10},
}

var (
	CryptoAmounts   = []int{10, 25, 50, 75, 100, 150}
	CryptoFactors   = []int{2, 3}
	ChoicesPerOffer = 3
)

const (
	HackMinCut        = 10
	HackMinCutPercent = 0.10
	HackMaxCutPercent = 0.30
)

// Choice is one hidden data packet.
type Choice struct {
	Kind   ChoiceKind `json:"kind"`
	Amount int        `json:"amount,omitempty"`
	Factor int        `json:"factor,omitempty"`
}

func DrawChoice(rng *mrand.Rand) Choice {
	choice := Choice{Kind: Pick(rng, ChoiceTable)}
	switch choice.Kind {
	case ChoiceCrypto:
		choice.Amount = pickInt(rng, CryptoAmounts)
	case ChoiceMultiply:
		choice.Factor = pickInt(rng, CryptoFactors)
	}
	return choice
}

// DrawChoices returns the face-down set offered after a correct answer.
func DrawChoices(rng *mrand.Rand) []Choice {
	choices := make([]Choice, ChoicesPerOffer)
	for i := range choices {
		choices[i] = DrawChoice(rng)
	}
	return choices
}

// ApplyChoice returns the balance after choice and whether it grants a hack
// token. Balances saturate at math.MaxInt instead of wrapping.
func ApplyChoice(balance int, choice Choice) (int, bool) {
	switch choice.Kind {
	case ChoiceCrypto:
		return AddCapped(balance, choice.Amount), false
	case ChoiceMultiply:
		if choice.Factor > 1 {
			return mulCapped(balance, choice.Factor), false
		}
		return balance, false
	case ChoiceHack:
		return balance, true
	default:
		return balance, false
	}
}

// AddCapped adds two non-negative amounts, stopping at math.MaxInt.
func AddCapped(a, b int) int {
	if b > 0 && a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

func mulCapped(a, factor int) int {
	if a > 0 && a > math.MaxInt/factor {
		return math.MaxInt
	}
	return a * factor
}

// HackCutPercent draws p in [0.10, 0.30].
func HackCutPercent(rng *mrand.Rand) float64 {
	return HackMinCutPercent + rng.Float64()*(HackMaxCutPercent-HackMinCutPercent)
}

// HackCut is clamp(floor(balance*p), HackMinCut, balance).
func HackCut(balance int, p float64) int {
	if balance <= 0 {
		return 0
	}
	cut := int(math.Floor(float64(balance) * p))
	if cut < HackMinCut {
		cut = HackMinCut
	}
	if cut > balance {
		cut = balance
	}
	return cut
}
