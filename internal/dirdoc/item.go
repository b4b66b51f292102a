package dirdoc

import (
	"encoding/base64"
	"strings"

	"github.com/irl/bushel/internal/bushelerr"
)

// Object is a base64-decoded PEM-style block embedded in an Item, such as
// an "ed25519_cert" or "router-signature" object.
type Object struct {
	Keyword string
	Decoded []byte
}

// Item is one keyword line (plus any trailing object blocks) emitted by the
// Itemizer.
type Item struct {
	Keyword   string
	Arguments []string
	Objects   []Object
	Errors    []error
}

// ForgivableWhitespace, when passed to NewItemizer, permits trailing
// whitespace at the end of a keyword line instead of treating it as fatal.
const ForgivableWhitespace = "trailing-whitespace"

type itemizerState int

const (
	stStart itemizerState = iota
	stKeywordLine
	stKeywordLineWS
	stKeywordLineEnd
	stObjectData
	stObjectDataEOL
)

// Itemizer is Stage 2 of the pipeline: it drives a Lexer and assembles
// Items via a keyword-line state machine.
type Itemizer struct {
	lex   *Lexer
	allow map[string]bool
}

// NewItemizer creates an Itemizer over data. allow lists the forgivable
// error kinds (currently only ForgivableWhitespace) that should be
// recorded on the item instead of treated as fatal.
func NewItemizer(data []byte, allow ...string) *Itemizer {
	m := make(map[string]bool, len(allow))
	for _, a := range allow {
		m[a] = true
	}
	return &Itemizer{lex: NewLexer(data), allow: m}
}

// Items consumes the entire token stream and returns every Item emitted.
// It stops (with an error) at the first fatal MISMATCH or bad transition.
func (it *Itemizer) Items() ([]*Item, error) {
	var items []*Item
	state := stStart
	var cur *Item
	var objKeyword string
	var objLines []string

	for {
		tok, err := it.lex.Next()
		if err != nil {
			return items, err
		}

		switch state {
		case stStart:
			switch tok.Kind {
			case TokenPrintable:
				cur = &Item{Keyword: tok.Value}
				state = stKeywordLine
			case TokenEOF:
				return items, nil
			default:
				return items, bushelerr.ParseErrorAt(tok.Line, tok.Column, "expected a keyword, found %s", tok.Kind)
			}

		case stKeywordLine:
			switch tok.Kind {
			case TokenWS:
				state = stKeywordLineWS
			case TokenNL:
				state = stKeywordLineEnd
			default:
				return items, bushelerr.ParseErrorAt(tok.Line, tok.Column, "expected whitespace or newline on keyword line, found %s", tok.Kind)
			}

		case stKeywordLineWS:
			switch tok.Kind {
			case TokenPrintable:
				cur.Arguments = append(cur.Arguments, tok.Value)
				state = stKeywordLine
			case TokenNL:
				if !it.allow[ForgivableWhitespace] {
					return items, bushelerr.ParseErrorAt(tok.Line, tok.Column, "trailing whitespace on keyword line")
				}
				cur.Errors = append(cur.Errors, bushelerr.New(bushelerr.KindForgivableProtocol, "trailing whitespace on keyword line"))
				state = stKeywordLineEnd
			default:
				return items, bushelerr.ParseErrorAt(tok.Line, tok.Column, "expected an argument or newline, found %s", tok.Kind)
			}

		case stKeywordLineEnd:
			switch tok.Kind {
			case TokenBegin:
				objKeyword = tok.Value
				objLines = nil
				state = stObjectData
			case TokenNL:
				// The newline terminating an END line; nothing to record.
			case TokenPrintable:
				items = append(items, cur)
				cur = &Item{Keyword: tok.Value}
				state = stKeywordLine
			case TokenEOF:
				items = append(items, cur)
				return items, nil
			default:
				return items, bushelerr.ParseErrorAt(tok.Line, tok.Column, "expected a keyword or object, found %s", tok.Kind)
			}

		case stObjectData:
			switch tok.Kind {
			case TokenNL:
				// The newline terminating a BEGIN line; nothing to record.
			case TokenPrintable:
				objLines = append(objLines, tok.Value)
				state = stObjectDataEOL
			case TokenEnd:
				decoded, derr := decodeObjectLines(objLines)
				if derr != nil {
					return items, bushelerr.ParseErrorAt(tok.Line, tok.Column, "invalid base64 in %q object: %v", objKeyword, derr)
				}
				cur.Objects = append(cur.Objects, Object{Keyword: objKeyword, Decoded: decoded})
				state = stKeywordLineEnd
			default:
				return items, bushelerr.ParseErrorAt(tok.Line, tok.Column, "expected object data or END, found %s", tok.Kind)
			}

		case stObjectDataEOL:
			switch tok.Kind {
			case TokenNL:
				state = stObjectData
			default:
				return items, bushelerr.ParseErrorAt(tok.Line, tok.Column, "expected newline after object data line, found %s", tok.Kind)
			}
		}
	}
}

func decodeObjectLines(lines []string) ([]byte, error) {
	joined := strings.Join(lines, "")
	return base64.StdEncoding.DecodeString(joined)
}
