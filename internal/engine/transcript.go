package engine

import (
	"time"

	"caption-ingress-engine/internal/models"
	"caption-ingress-engine/internal/textutil"
)

// CommitOutcome describes what a commit attempt did to the transcript.
type CommitOutcome int

const (
	// OutcomeIgnored - the observation was already committed.
	OutcomeIgnored CommitOutcome = iota
	// OutcomeRevised - the last block was extended in place.
	OutcomeRevised
	// OutcomeReplaced - the last block's text was replaced by a correction.
	OutcomeReplaced
	// OutcomeAppended - a new block was appended.
	OutcomeAppended
)

// String returns the string representation of the outcome.
func (o CommitOutcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "IGNORED"
	case OutcomeRevised:
		return "REVISED"
	case OutcomeReplaced:
		return "REPLACED"
	case OutcomeAppended:
		return "APPENDED"
	default:
		return "UNKNOWN"
	}
}

// Transcript is the ordered, append-mostly record of committed utterances.
// It is a plain data structure; the engine serializes all access.
type Transcript struct {
	blocks []models.CommittedBlock
}

// NewTranscript returns an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Len returns the number of committed blocks.
func (t *Transcript) Len() int {
	return len(t.blocks)
}

// Blocks returns a copy of all committed blocks.
func (t *Transcript) Blocks() []models.CommittedBlock {
	out := make([]models.CommittedBlock, len(t.blocks))
	copy(out, t.blocks)
	return out
}

// Tail returns a copy of the most recent n blocks.
func (t *Transcript) Tail(n int) []models.CommittedBlock {
	if n <= 0 || len(t.blocks) == 0 {
		return nil
	}
	if n > len(t.blocks) {
		n = len(t.blocks)
	}
	out := make([]models.CommittedBlock, n)
	copy(out, t.blocks[len(t.blocks)-n:])
	return out
}

// Clear atomically empties the transcript. The only operation that shrinks
// it.
func (t *Transcript) Clear() {
	t.blocks = nil
}

// Restore replaces the transcript content from a persisted tail.
func (t *Transcript) Restore(blocks []models.CommittedBlock) {
	t.blocks = make([]models.CommittedBlock, len(blocks))
	copy(t.blocks, blocks)
}

// Commit folds a disappeared observation into the transcript. Against a
// last block with the same speaker: identical text was already committed;
// text sharing the opening and strictly longer is a recognizer revision and
// updates the block in place; text sharing the opening but not longer is a
// truncated re-observation and is dropped; text with a different opening
// but high token overlap is a correction and replaces the block's text.
// Everything else appends a new block with a fresh timestamp. A block's
// speaker never changes after creation.
func (t *Transcript) Commit(obs models.CaptionObservation, now time.Time, rules Rules) CommitOutcome {
	if len(t.blocks) > 0 {
		last := &t.blocks[len(t.blocks)-1]
		if last.Speaker == obs.Speaker {
			switch {
			case last.Text == obs.Text:
				return OutcomeIgnored
			case textutil.SharesPrefix(last.Text, obs.Text, rules.SharedPrefixRunes):
				if len([]rune(obs.Text)) > len([]rune(last.Text)) {
					last.Text = obs.Text
					return OutcomeRevised
				}
				return OutcomeIgnored
			case textutil.OverlapRatio(last.Text, obs.Text) >= rules.SimilarityThreshold:
				last.Text = obs.Text
				return OutcomeReplaced
			}
		}
	}

	t.blocks = append(t.blocks, models.CommittedBlock{
		Speaker:     obs.Speaker,
		Text:        obs.Text,
		CommittedAt: now,
	})
	return OutcomeAppended
}

// View renders the externally visible transcript: committed blocks followed
// by the current visible observations as provisional blocks. The first
// provisional block folds into the last committed block when speakers match,
// so a participant's live line updates in place instead of duplicating.
func (t *Transcript) View(visible []models.CaptionObservation, now time.Time, rules Rules) []models.CommittedBlock {
	view := t.Blocks()
	for i, obs := range visible {
		if i == 0 && len(view) > 0 {
			last := &view[len(view)-1]
			if last.Speaker == obs.Speaker {
				if rules.sameText(last.Text, obs.Text) {
					if len([]rune(obs.Text)) > len([]rune(last.Text)) {
						last.Text = obs.Text
					}
				} else {
					last.Text = last.Text + " " + obs.Text
				}
				continue
			}
		}
		view = append(view, models.CommittedBlock{
			Speaker:     obs.Speaker,
			Text:        obs.Text,
			CommittedAt: now,
		})
	}
	return view
}

// ReplaceText applies a corrective replacement to the block at index,
// guarded by an optimistic check on the text the correction was computed
// from. Returns false when the block moved on in the meantime.
func (t *Transcript) ReplaceText(index int, oldText, newText string) bool {
	if index < 0 || index >= len(t.blocks) {
		return false
	}
	if t.blocks[index].Text != oldText {
		return false
	}
	t.blocks[index].Text = newText
	return true
}
