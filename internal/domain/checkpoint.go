package domain

import (
	"time"

	"github.com/google/uuid"
)

// Checkpoint is the immutable, persisted output of one completed stage for
// one Document. Its key is (DocumentID, Stage); it is the resume point for
// crash recovery and the diff source for streaming (§4.G, §4.H).
type Checkpoint struct {
	DocumentID uuid.UUID
	Stage      int
	Output     []byte
	WrittenAt  time.Time
}
