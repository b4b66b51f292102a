package bwfile

import (
	"strings"

	"github.com/irl/bushel/internal/bushelerr"
)

// ForgivableShortTerminator, when passed to NewLiner, accepts a
// four-equals-sign terminator in place of the canonical five.
const ForgivableShortTerminator = "short-terminator"

// ForgivableHeaderSpace, when passed to NewLiner, accepts a trailing space
// after a header key=value pair, before its newline, for
// pre-1.0.0-generator compatibility. A second key=value pair on the same
// header line is still rejected.
const ForgivableHeaderSpace = "header-space"

type linerState int

const (
	lnStart linerState = iota
	lnTimestamp
	lnHeaderLine
	lnHeaderLineKV
	lnRelayLine
	lnRelayLineKV
	lnRelayLineSP
	lnDone
)

// HeaderLine is one "Key=Value" pair from the header block.
type HeaderLine struct {
	Key   string
	Value string
}

// RelayLine is the set of "Key=Value" pairs describing one measured relay.
type RelayLine struct {
	Fields map[string]string
}

// File is the parsed line-level structure of a bandwidth file.
type File struct {
	Timestamp string
	Header    []HeaderLine
	Relays    []RelayLine
	// SoftErrors records forgivable protocol deviations encountered while
	// parsing, in document order.
	SoftErrors []error
}

// Liner drives a Lexer through the bandwidth-file state machine,
// assembling a File from the header and per-relay key-value pairs.
type Liner struct {
	lex   *Lexer
	allow map[string]bool
}

// NewLiner creates a Liner over data. allow lists the forgivable deviations
// (ForgivableShortTerminator, ForgivableHeaderSpace) to tolerate instead of
// treating as fatal.
func NewLiner(data []byte, allow ...string) *Liner {
	m := make(map[string]bool, len(allow))
	for _, a := range allow {
		m[a] = true
	}
	return &Liner{lex: NewLexer(data), allow: m}
}

// Lines runs the state machine to completion and returns the assembled
// File, or the first fatal parse error encountered.
func (l *Liner) Lines() (*File, error) {
	f := &File{}
	state := lnStart
	var curKey string
	var pendingRelay RelayLine

	for {
		tok, err := l.lex.Next()
		if err != nil {
			return f, err
		}

		switch state {
		case lnStart:
			switch tok.Kind {
			case TokenTimestamp:
				f.Timestamp = tok.Value
				state = lnTimestamp
			default:
				return f, bushelerr.ParseErrorAt(tok.Line, tok.Column, "expected timestamp, found %s", tok.Kind)
			}

		case lnTimestamp:
			switch tok.Kind {
			case TokenNL:
				state = lnHeaderLine
			default:
				return f, bushelerr.ParseErrorAt(tok.Line, tok.Column, "expected newline after timestamp, found %s", tok.Kind)
			}

		case lnHeaderLine:
			switch tok.Kind {
			case TokenKeyValue:
				k, v := splitKeyValue(tok.Value)
				curKey, _ = k, v
				f.Header = append(f.Header, HeaderLine{Key: k, Value: v})
				state = lnHeaderLineKV
			case TokenTerminator:
				state = lnRelayLine
			case TokenShortTerminator:
				if !l.allow[ForgivableShortTerminator] {
					return f, bushelerr.ParseErrorAt(tok.Line, tok.Column, "short terminator (==== instead of =====)")
				}
				f.SoftErrors = append(f.SoftErrors, bushelerr.New(bushelerr.KindForgivableProtocol, "short terminator"))
				state = lnRelayLine
			default:
				return f, bushelerr.ParseErrorAt(tok.Line, tok.Column, "expected header key=value or terminator, found %s", tok.Kind)
			}

		case lnHeaderLineKV:
			switch tok.Kind {
			case TokenNL:
				state = lnHeaderLine
			case TokenSP:
				if !l.allow[ForgivableHeaderSpace] {
					return f, bushelerr.ParseErrorAt(tok.Line, tok.Column, "space after header key=value")
				}
				f.SoftErrors = append(f.SoftErrors, bushelerr.New(bushelerr.KindForgivableProtocol, "space after header key=value for %q", curKey))
			default:
				return f, bushelerr.ParseErrorAt(tok.Line, tok.Column, "expected newline after header key=value, found %s", tok.Kind)
			}

		case lnRelayLine:
			switch tok.Kind {
			case TokenKeyValue:
				pendingRelay = RelayLine{Fields: map[string]string{}}
				k, v := splitKeyValue(tok.Value)
				pendingRelay.Fields[k] = v
				state = lnRelayLineKV
			case TokenEOF:
				state = lnDone
				return f, nil
			default:
				return f, bushelerr.ParseErrorAt(tok.Line, tok.Column, "expected relay key=value or EOF, found %s", tok.Kind)
			}

		case lnRelayLineKV:
			switch tok.Kind {
			case TokenSP:
				state = lnRelayLineSP
			case TokenNL:
				f.Relays = append(f.Relays, pendingRelay)
				state = lnRelayLine
			default:
				return f, bushelerr.ParseErrorAt(tok.Line, tok.Column, "expected space or newline in relay line, found %s", tok.Kind)
			}

		case lnRelayLineSP:
			switch tok.Kind {
			case TokenKeyValue:
				k, v := splitKeyValue(tok.Value)
				pendingRelay.Fields[k] = v
				state = lnRelayLineKV
			default:
				return f, bushelerr.ParseErrorAt(tok.Line, tok.Column, "expected key=value after space, found %s", tok.Kind)
			}
		}
	}
}

func splitKeyValue(s string) (string, string) {
	idx := strings.IndexByte(s, '=')
	if idx < 0 {
		return s, ""
	}
	return s[:idx], s[idx+1:]
}
