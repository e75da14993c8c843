package tasks

import "github.com/google/uuid"

// Envelope is the wire shape of a task submission written to the commands
// topic. Key is always EntityID.String() so the broker partitions every job
// for the same Document/Chapter onto one partition (§4.I "serialized by
// entity id").
type Envelope struct {
	TaskID   uuid.UUID `json:"task_id"`
	Type     string    `json:"type"`
	EntityID uuid.UUID `json:"entity_id"`
}

// Result is the wire shape written to the responses topic (or its .dlq
// sibling) once a task reaches a terminal state.
type Result struct {
	TaskID uuid.UUID      `json:"task_id"`
	Status string         `json:"status"`
	Data   map[string]any `json:"data,omitempty"`
	Error  string         `json:"error,omitempty"`
}
