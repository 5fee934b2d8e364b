package model

// Question is one entry of a content set as captured when the session was created.
type Question struct {
	ID               string   `json:"id"`
	Prompt           string   `json:"prompt"`
	Options          []string `json:"options"`
	CorrectIndex     int      `json:"correctIndex"`
	TimeLimitSeconds int      `json:"timeLimitSeconds"`
	MediaURL         string   `json:"mediaUrl,omitempty"`
}

// PublicQuestion is what players see; the correct index stays on the server.
type PublicQuestion struct {
	ID               string   `json:"id"`
	Prompt           string   `json:"prompt"`
	Options          []string `json:"options"`
	TimeLimitSeconds int      `json:"timeLimitSeconds"`
	MediaURL         string   `json:"mediaUrl,omitempty"`
}

func (q Question) Public() PublicQuestion {
	return PublicQuestion{
		ID:               q.ID,
		Prompt:           q.Prompt,
		Options:          q.Options,
		TimeLimitSeconds: q.TimeLimitSeconds,
		MediaURL:         q.MediaURL,
	}
}

// ContentSet is a question set owned by a host in the content store.
type ContentSet struct {
	ID        string     `db:"id" json:"id"`
	OwnerID   string     `db:"owner_id" json:"ownerId"`
	Title     string     `db:"title" json:"title"`
	Questions []Question `db:"-" json:"questions"`
}
