// Package extract converts an attached caption source into an ordered list
// of speaker-attributed observations.
//
// Extraction is tiered: structured entries when the source exposes them,
// then whole-text line grouping, then a generic leaf traversal, then the raw
// text as a single unattributed observation. Each tier runs only when the
// previous one produced nothing usable.
package extract

import (
	"strings"

	"caption-ingress-engine/internal/models"
	"caption-ingress-engine/internal/source"
)

// maxSpeakerLabelWords: a short, punctuation-free line of at most this many
// words is read as a speaker label for the lines that follow it.
const maxSpeakerLabelWords = 4

// maxSpeakerLabelRunes guards against a long unpunctuated clause being
// mistaken for a name.
const maxSpeakerLabelRunes = 40

// Snapshot extracts the currently visible observations from node. An empty
// result with an attached, readable node means the source legitimately shows
// no captions right now.
func Snapshot(node source.Node) []models.CaptionObservation {
	if node == nil {
		return nil
	}

	if obs := structuredEntries(node); len(obs) > 0 {
		return obs
	}
	if obs := lineGrouping(node.Text()); len(obs) > 0 {
		return obs
	}
	if obs := leafTraversal(node); len(obs) > 0 {
		return obs
	}
	return rawFallback(node.Text())
}

// structuredEntries uses the EntryLister upgrade when the source exposes
// discrete caption entries.
func structuredEntries(node source.Node) []models.CaptionObservation {
	lister, ok := node.(source.EntryLister)
	if !ok {
		return nil
	}
	entries := lister.CaptionEntries()
	out := make([]models.CaptionObservation, 0, len(entries))
	for _, entry := range entries {
		text := strings.TrimSpace(entry.Text)
		if text == "" {
			continue
		}
		out = append(out, models.CaptionObservation{
			Speaker: strings.TrimSpace(entry.Speaker),
			Text:    text,
		})
	}
	return out
}

// lineGrouping splits the source's whole text into lines and groups them
// under speaker labels.
func lineGrouping(text string) []models.CaptionObservation {
	lines := strings.Split(text, "\n")

	var out []models.CaptionObservation
	var speaker string
	var sawLabel bool
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isSpeakerLabel(line) {
			speaker = strings.TrimSuffix(line, ":")
			sawLabel = true
			continue
		}
		out = append(out, models.CaptionObservation{Speaker: speaker, Text: line})
	}
	// Without at least one label the grouping found no structure; let the
	// next tier try.
	if !sawLabel {
		return nil
	}
	return out
}

// leafTraversal walks the node tree classifying short leaf text as speaker
// labels using the same heuristic as line grouping.
func leafTraversal(node source.Node) []models.CaptionObservation {
	var out []models.CaptionObservation
	var speaker string
	var sawLabel bool

	var walk func(source.Node)
	walk = func(n source.Node) {
		children := n.Children()
		if len(children) == 0 {
			text := strings.TrimSpace(n.Text())
			if text == "" {
				return
			}
			if isSpeakerLabel(text) {
				speaker = strings.TrimSuffix(text, ":")
				sawLabel = true
				return
			}
			out = append(out, models.CaptionObservation{Speaker: speaker, Text: text})
			return
		}
		for _, child := range children {
			walk(child)
		}
	}
	walk(node)

	if !sawLabel {
		return nil
	}
	return out
}

// rawFallback returns the whole text as one unattributed observation.
func rawFallback(text string) []models.CaptionObservation {
	joined := strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if joined == "" {
		return nil
	}
	return []models.CaptionObservation{{Text: joined}}
}

// isSpeakerLabel reports whether a line reads like "Ana Torres" or "You:"
// rather than speech: short, at most four words, and free of sentence
// punctuation.
func isSpeakerLabel(line string) bool {
	trimmed := strings.TrimSuffix(line, ":")
	if trimmed == "" || len([]rune(trimmed)) > maxSpeakerLabelRunes {
		return false
	}
	if strings.ContainsAny(trimmed, ".,!?;") {
		return false
	}
	words := strings.Fields(trimmed)
	return len(words) >= 1 && len(words) <= maxSpeakerLabelWords
}
