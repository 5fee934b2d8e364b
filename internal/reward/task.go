package reward

import (
	"fmt"
	mrand "math/rand/v2"
	"strings"

	"github.com/google/uuid"
)

type TaskKind string

const (
	TaskTypePhrase  TaskKind = "type_phrase"
	TaskSumDigits   TaskKind = "sum_digits"
	TaskReverseWord TaskKind = "reverse_word"
)

var TaskTable = []Weighted[TaskKind]{
	{TaskTypePhrase, 1},
	{TaskSumDigits, 1},
	{TaskReverseWord, 1},
}

var recoveryPhrases = []string{
	"reboot the mainframe",
	"purge the cache",
	"patch the kernel",
	"restore from backup",
	"flush the buffers",
}

// Task is a glitch recovery mini-game. Solution is checked server side and is
// never sent to the client.
type Task struct {
	ID       string   `json:"id"`
	Kind     TaskKind `json:"kind"`
	Prompt   string   `json:"prompt"`
	Solution string   `json:"solution"`
}

// PublicTask is the client-facing view of a task.
type PublicTask struct {
	ID     string   `json:"id"`
	Kind   TaskKind `json:"kind"`
	Prompt string   `json:"prompt"`
}

func (t Task) Public() PublicTask {
	return PublicTask{ID: t.ID, Kind: t.Kind, Prompt: t.Prompt}
}

// Check compares an answer against the solution ignoring case and surrounding space.
func (t Task) Check(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), t.Solution)
}

func DrawTask(rng *mrand.Rand) Task {
	task := Task{ID: uuid.NewString(), Kind: Pick(rng, TaskTable)}
	switch task.Kind {
	case TaskTypePhrase:
		phrase := recoveryPhrases[rng.IntN(len(recoveryPhrases))]
		task.Prompt = fmt.Sprintf("Type %q to recover", phrase)
		task.Solution = phrase
	case TaskSumDigits:
		a, b := 10+rng.IntN(90), 10+rng.IntN(90)
		task.Prompt = fmt.Sprintf("What is %d + %d?", a, b)
		task.Solution = fmt.Sprint(a + b)
	case TaskReverseWord:
		word := Passwords[rng.IntN(len(Passwords))]
		task.Prompt = fmt.Sprintf("Type %q backwards", word)
		task.Solution = reverse(word)
	}
	return task
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
