package at

import (
	"fmt"
	"strconv"
	"strings"
)

// Params is an ordered list of numeric parameters following a result tag.
type Params []uint64

// Notification is a classified unsolicited result code.
type Notification struct {
	// Tag is the matched prefix, e.g. "+CEREG".
	Tag string
	// Params holds the parsed parameter list. It is nil for tags that carry
	// no parameters, such as RING.
	Params Params
	// Raw is the line as received.
	Raw string
}

// ParseError reports a line that could not be parsed.
type ParseError struct {
	// Stage is where parsing failed: "prefix", "list" or "param", or
	// "frame" for a reply without a terminal token.
	Stage string
	// Line is the offending input.
	Line string
	// Index is the parameter position for Stage "param", otherwise -1.
	Index int
	// Err is the underlying cause, if any.
	Err error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse %s %q", e.Stage, e.Line)
	if e.Index >= 0 {
		msg += fmt.Sprintf(" at index %d", e.Index)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// recognized is the number of leading numeric parameters parsed per tag.
// Trailing fields (quoted TAC/cell IDs and the like) are not inspected.
var recognized = map[string]int{
	UrcRegistration: 1,
	UrcSignaling:    1,
	UrcNewMsg:       0,
	UrcCall:         0,
}

// ParseParams parses a comma separated list of unsigned integers.
func ParseParams(s string) (Params, error) {
	return parseParams(s, -1)
}

// parseParams converts at most limit leading fields; a negative limit
// converts them all.
func parseParams(s string, limit int) (Params, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, &ParseError{Stage: "list", Line: s, Index: -1}
	}

	fields := strings.Split(s, ",")
	if limit >= 0 && limit < len(fields) {
		fields = fields[:limit]
	}
	params := make(Params, 0, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 32)
		if err != nil {
			return nil, &ParseError{Stage: "param", Line: s, Index: i, Err: err}
		}
		params = append(params, v)
	}
	return params, nil
}

// ParseTagged parses a "<tag>: <p0>,<p1>,..." line and returns the parameter
// list. The tag must be followed directly by a colon.
func ParseTagged(line, tag string) (Params, error) {
	return parseTagged(line, tag, -1)
}

func parseTagged(line, tag string, limit int) (Params, error) {
	rest, ok := strings.CutPrefix(line, tag)
	if !ok {
		return nil, &ParseError{Stage: "prefix", Line: line, Index: -1}
	}
	rest, ok = strings.CutPrefix(rest, ":")
	if !ok {
		return nil, &ParseError{Stage: "list", Line: line, Index: -1}
	}
	params, err := parseParams(rest, limit)
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			pe.Line = line
		}
		return nil, err
	}
	return params, nil
}

// ParseNotification classifies line against the known URC tags and parses
// its parameter list.
func ParseNotification(line string) (Notification, error) {
	tag := matchTag(line)
	if tag == "" {
		return Notification{}, &ParseError{Stage: "prefix", Line: line, Index: -1}
	}

	n := Notification{Tag: tag, Raw: line}
	limit := recognized[tag]
	if line == tag || limit == 0 {
		return n, nil
	}

	params, err := parseTagged(line, tag, limit)
	if err != nil {
		return Notification{}, err
	}
	n.Params = params
	return n, nil
}

// RegistrationStatus returns the status code of a +CEREG notification.
func (n Notification) RegistrationStatus() (uint64, bool) {
	if n.Tag != UrcRegistration || len(n.Params) == 0 {
		return 0, false
	}
	return n.Params[0], true
}

// QueryRegistrationStatus extracts the status from a solicited
// "+CEREG: <n>,<stat>[,...]" reply.
func QueryRegistrationStatus(line string) (uint64, error) {
	params, err := parseTagged(line, UrcRegistration, 2)
	if err != nil {
		return 0, err
	}
	if len(params) < 2 {
		return 0, &ParseError{Stage: "param", Line: line, Index: 1}
	}
	return params[1], nil
}
