package api

import "time"

// Sprite is a remote sandbox descriptor as returned by the Sprites API.
// The client names sprites and issues commands against them; it does not
// own their lifecycle beyond create and delete.
type Sprite struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Checkpoint is an immutable snapshot of a sprite's state. The comment
// carries the structured metadata used for step matching.
type Checkpoint struct {
	ID         string    `json:"id"`
	CreateTime time.Time `json:"create_time"`
	Comment    string    `json:"comment,omitempty"`
}

// SpriteList is one page of a sprite listing. When HasMore is set the
// caller passes NextContinuationToken to fetch the next page.
type SpriteList struct {
	Sprites               []*Sprite `json:"sprites"`
	HasMore               bool      `json:"has_more"`
	NextContinuationToken string    `json:"next_continuation_token,omitempty"`
}

// ExecResult is the outcome of a command executed on a sprite.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

type createSpriteRequest struct {
	Name string `json:"name"`
}

type createCheckpointRequest struct {
	Comment string `json:"comment,omitempty"`
}

type execRequest struct {
	Command string            `json:"command"`
	Workdir string            `json:"workdir,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}
