// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package output turns raw pane captures into attributed, deduplicated,
// dual-mode output chunks.
package output

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// humanMaxRunes bounds the human rendering; chat surfaces reject very long
// messages.
const humanMaxRunes = 3500

// Rendering is one output delta in both forms.
type Rendering struct {
	// Human is ANSI-stripped, blank-collapsed output, cut to its last
	// humanMaxRunes runes.
	Human string
	// Agent is the precise, whitespace- and newline-preserving form.
	Agent string
}

// Render produces both forms of a delta.
func Render(delta string) Rendering {
	return Rendering{
		Human: renderHuman(delta),
		Agent: delta,
	}
}

// Empty reports whether the delta carries nothing visible for humans and
// nothing at all for agents.
func (r Rendering) Empty() bool {
	return strings.TrimSpace(r.Human) == "" && r.Agent == ""
}

func renderHuman(delta string) string {
	stripped := ansi.Strip(delta)

	lines := strings.Split(stripped, "\n")
	out := make([]string, 0, len(lines))
	blanks := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			blanks++
			if blanks > 1 {
				continue
			}
		} else {
			blanks = 0
		}
		out = append(out, line)
	}
	// Drop leading and trailing blank lines
	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}

	s := strings.Join(out, "\n")
	if runes := []rune(s); len(runes) > humanMaxRunes {
		// Keep the tail; the most recent output is what matters on a phone.
		s = "…" + string(runes[len(runes)-humanMaxRunes:])
	}
	return s
}

// diff subtracts the already-forwarded baseline from a fresh capture and
// returns the new delta. Captures grow by appending. Otherwise the delta is
// what follows the longest common prefix, unless that prefix covers less than
// half the baseline (screen clear, pane restart): then it is the full capture.
func diff(baseline, current string) string {
	if baseline == current {
		return ""
	}
	if strings.HasPrefix(current, baseline) {
		return current[len(baseline):]
	}

	// Partial overlap: advance past the longest common prefix.
	max := len(baseline)
	if len(current) < max {
		max = len(current)
	}
	i := 0
	for i < max && baseline[i] == current[i] {
		i++
	}
	// Rewritten beyond recognition: treat everything as new.
	if i < len(baseline)/2 {
		return current
	}
	return current[i:]
}
