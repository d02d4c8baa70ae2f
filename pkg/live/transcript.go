package live

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Turn is one contiguous utterance by a single speaker.
type Turn struct {
	ID      string
	Speaker Speaker
	Text    string
}

// Transcript merges streamed transcript deltas into turns. Each
// speaker has an explicit open-turn slot; consecutive deltas for a
// speaker append to its open turn no matter how far apart they arrive,
// and a delta from the other speaker closes it. Nothing else closes a
// turn before Finalize: not a timeout, not a turn or interruption
// signal, only speaker alternation.
type Transcript struct {
	mu       sync.Mutex
	turns    []Turn
	openUser int
	openAI   int
}

const noOpenTurn = -1

func NewTranscript() *Transcript {
	return &Transcript{openUser: noOpenTurn, openAI: noOpenTurn}
}

func (tr *Transcript) slot(speaker Speaker) *int {
	if speaker == SpeakerUser {
		return &tr.openUser
	}
	return &tr.openAI
}

// Append folds one delta into the speaker's open turn, opening a new
// turn and closing the other speaker's when none is open.
func (tr *Transcript) Append(speaker Speaker, text string) {
	if text == "" {
		return
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()

	slot := tr.slot(speaker)
	if *slot != noOpenTurn {
		tr.turns[*slot].Text += text
		return
	}

	other := SpeakerUser
	if speaker == SpeakerUser {
		other = SpeakerAI
	}
	*tr.slot(other) = noOpenTurn

	tr.turns = append(tr.turns, Turn{
		ID:      uuid.NewString(),
		Speaker: speaker,
		Text:    text,
	})
	*slot = len(tr.turns) - 1
}

// Log returns a snapshot of the conversation so far, open turns
// included.
func (tr *Transcript) Log() []Turn {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]Turn, len(tr.turns))
	copy(out, tr.turns)
	return out
}

// Finalize closes all turns and returns the conversation in
// chronological order with whitespace-only turns removed.
func (tr *Transcript) Finalize() []Turn {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.openUser = noOpenTurn
	tr.openAI = noOpenTurn

	out := make([]Turn, 0, len(tr.turns))
	for _, turn := range tr.turns {
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		out = append(out, turn)
	}
	return out
}
