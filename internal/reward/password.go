package reward

import (
	mrand "math/rand/v2"
	"slices"
)

// Passwords is the curated list players pick from in hack mode.
var Passwords = []string{
	"falcon", "cobalt", "nebula", "quartz", "pixel", "ember",
	"glacier", "vortex", "cipher", "lunar", "matrix", "raven",
	"saturn", "turbo", "zephyr", "onyx", "hydra", "jungle",
	"krypton", "atlas",
}

// HackOptionCount is the number of guesses shown, the real password included.
const HackOptionCount = 4

func IsPassword(word string) bool {
	return slices.Contains(Passwords, word)
}

// Hint reveals the first attempts characters of password.
func Hint(password string, attempts int) string {
	r := []rune(password)
	if attempts <= 0 {
		return ""
	}
	if attempts > len(r) {
		attempts = len(r)
	}
	return string(r[:attempts])
}

// HackOptions returns password mixed with distractors from the curated list, shuffled.
func HackOptions(rng *mrand.Rand, password string) []string {
	pool := make([]string, 0, len(Passwords))
	for _, word := range Passwords {
		if word != password {
			pool = append(pool, word)
		}
	}
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	n := HackOptionCount - 1
	if n > len(pool) {
		n = len(pool)
	}
	options := append([]string{password}, pool[:n]...)
	rng.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })
	return options
}
