// Package wire defines the client-to-server frame format. A frame is a UTF-8
// text line, optionally tagged with a kind prefix ("CMD:<line>"). The tag is
// parsed exactly once, at the transport boundary.
package wire

import "strings"

// Kind is the closed set of frame kinds.
type Kind int

const (
	// KindCommand is a tagged command frame ("CMD:<line>").
	KindCommand Kind = iota

	// KindRaw is an untagged line, treated as a bare command line.
	KindRaw
)

const commandPrefix = "CMD:"

// MaxLineBytes bounds the size of a single frame; longer lines terminate the
// connection.
const MaxLineBytes = 64 * 1024

// Frame is one decoded client frame.
type Frame struct {
	Kind    Kind
	Payload string
}

// Parse decodes one line into a frame. Lines without a recognized tag are
// raw command lines; both forms are accepted.
func Parse(line string) Frame {
	if rest, ok := strings.CutPrefix(line, commandPrefix); ok {
		return Frame{Kind: KindCommand, Payload: rest}
	}
	return Frame{Kind: KindRaw, Payload: line}
}

// Command encodes a command line as a tagged frame.
func Command(line string) string {
	return commandPrefix + line
}
