package at

import (
	"bufio"
	"bytes"
	"strings"
)

// Splitter is used for tokenizing AT command modem responses. It uses
// the signature of bufio.SplitFunc so it can be directly used with bufio.Scanner.
//
// It splits the input by CRLF line endings.
//
// Important: This splitter assumes "No Echo" mode (ATE0). If echo is enabled,
// the echoed command is returned as an ordinary token and the framer skips it
// as a payload line.
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.Index(data, []byte(CRLF)); i >= 0 {
		return i + len(CRLF), data[0:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// urcTags lists the notification prefixes the classifier knows about.
var urcTags = []string{UrcRegistration, UrcSignaling, UrcNewMsg, UrcCall}

// Classify identifies the nature of the modem output. pending is the command
// currently awaiting a reply, or "" when none is in flight.
func Classify(line, pending string) ResponseType {
	switch {
	case isFinal(line):
		return TypeFinal
	case IsNotification(line, pending):
		return TypeURC
	default:
		return TypeData
	}
}

func isFinal(line string) bool {
	switch line {
	case OK, ERROR:
		return true
	}
	return strings.HasPrefix(line, CmeError) || strings.HasPrefix(line, CmsError)
}

// IsNotification reports whether line is an unsolicited result code. A line
// carrying a known tag is still treated as solicited data when pending is the
// read or execute form of that same tag, e.g. "+CEREG: 0,1" in reply to
// "AT+CEREG?".
func IsNotification(line, pending string) bool {
	tag := matchTag(line)
	if tag == "" {
		return false
	}
	return !queries(pending, tag)
}

// matchTag returns the known URC tag that line starts with, or "".
func matchTag(line string) string {
	for _, tag := range urcTags {
		if !strings.HasPrefix(line, tag) {
			continue
		}
		rest := line[len(tag):]
		if rest == "" || rest[0] == ':' {
			return tag
		}
	}
	return ""
}

func queries(pending, tag string) bool {
	cmd := strings.ToUpper(strings.TrimSpace(pending))
	if !strings.HasPrefix(cmd, CmdAt) {
		return false
	}
	cmd = cmd[len(CmdAt):]
	return cmd == tag || cmd == tag+"?" || cmd == tag+"=?"
}
