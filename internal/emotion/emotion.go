// Package emotion defines the persona label set the assistant prefixes its
// answers with, and the LED color each label maps to on the kiosk device.
package emotion

import "strings"

// Label is one emotion tag from the fixed persona set.
type Label string

// Labels the relay instructs the model to use. The device-side extras below
// are understood by the LED service but never requested from the model.
const (
	Excited   Label = "excited"
	Happy     Label = "happy"
	Surprised Label = "surprised"
	Sad       Label = "sad"
	Helpful   Label = "helpful"
	Thinking  Label = "thinking"
	Neutral   Label = "neutral"
	Welcoming Label = "welcoming"

	Loving  Label = "loving"
	Curious Label = "curious"
	Angry   Label = "angry"
	Sleepy  Label = "sleepy"
)

// FallbackColor is used when a label has no mapping (cool cyan).
const FallbackColor = 0x00FFFF

// colors maps each label to a 24-bit RGB value for the LED ring.
var colors = map[Label]uint32{
	Happy:     0xFFFF00, // yellow
	Excited:   0xFF00FF, // magenta
	Surprised: 0xFF8800, // orange
	Thinking:  0x00FFFF, // cyan
	Helpful:   0x00FF00, // green
	Neutral:   0x8888FF, // light blue
	Sad:       0x0000FF, // blue
	Welcoming: 0xFF69B4, // pink
	Loving:    0xFF1493, // deep pink
	Curious:   0x9932CC, // purple
	Angry:     0xFF0000, // red
	Sleepy:    0x4B0082, // indigo
}

// Persona returns the labels the model is instructed to choose from,
// in the order they appear in the system prompt.
func Persona() []Label {
	return []Label{Excited, Happy, Surprised, Sad, Helpful, Thinking, Neutral, Welcoming}
}

// Valid reports whether l is a known label (persona or device extra).
func (l Label) Valid() bool {
	_, ok := colors[l]
	return ok
}

// Color returns the RGB value for the label, or FallbackColor when unknown.
func (l Label) Color() uint32 {
	if c, ok := colors[l]; ok {
		return c
	}
	return FallbackColor
}

func (l Label) String() string { return string(l) }

// Detect extracts a leading "[label]" tag from text. The tag must be the
// first non-space content and name a known label (case-insensitive).
// Returns false when no valid tag is present.
func Detect(text string) (Label, bool) {
	s := strings.TrimLeft(text, " \t\r\n")
	if !strings.HasPrefix(s, "[") {
		return "", false
	}
	end := strings.IndexByte(s, ']')
	if end < 2 {
		return "", false
	}
	l := Label(strings.ToLower(s[1:end]))
	if !l.Valid() {
		return "", false
	}
	return l, true
}

// sniffLimit bounds how much leading text a Sniffer accumulates before
// giving up; the longest tag is well under this.
const sniffLimit = 32

// Sniffer detects the leading emotion tag of a streamed response, where the
// tag may arrive split across several deltas. Feed it each delta in order;
// it reports the label at most once, as soon as enough text has arrived to
// decide. The zero value is ready to use.
type Sniffer struct {
	buf  []byte
	done bool
}

// Feed appends the next delta and reports whether a label was just decided.
func (s *Sniffer) Feed(text string) (Label, bool) {
	if s.done || text == "" {
		return "", false
	}
	s.buf = append(s.buf, text...)

	lead := strings.TrimLeft(string(s.buf), " \t\r\n")
	switch {
	case lead == "":
		if len(s.buf) > sniffLimit {
			s.done = true
		}
	case lead[0] != '[':
		s.done = true
	case strings.IndexByte(lead, ']') >= 0:
		s.done = true
		return Detect(lead)
	case len(lead) > sniffLimit:
		s.done = true
	}
	return "", false
}
