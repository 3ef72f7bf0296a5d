package at

import "bytes"

// Status is the terminal classification of a framed response.
type Status int

const (
	// StatusIncomplete means no terminal token was found in the buffer.
	StatusIncomplete Status = iota
	// StatusOK means the response ended with OK.
	StatusOK
	// StatusError means the response ended with ERROR, +CME ERROR or +CMS ERROR.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	default:
		return "incomplete"
	}
}

// Response is one framed modem reply.
type Response struct {
	// Lines holds the non-empty payload lines preceding the terminal token.
	// Each line aliases the buffer passed to Frame.
	Lines [][]byte
	// Final is the terminal line, e.g. "OK" or "+CME ERROR: 30". It is empty
	// when Status is StatusIncomplete.
	Final []byte
	// Status is the terminal classification.
	Status Status
}

var errorPrefixes = [][]byte{[]byte(ERROR), []byte(CmeError), []byte(CmsError)}

// Frame splits buf into payload lines and classifies the terminal token.
//
// Terminal tokens are matched by prefix at the start of each line, so a
// payload line starting with "OK" ends the response. Scanning stops at the
// first terminal token; anything after it is ignored.
func Frame(buf []byte) Response {
	var resp Response

	p := buf
	for len(p) > 0 {
		end := bytes.IndexByte(p, '\r')
		if end < 0 {
			end = len(p)
		}
		line := p[:end]

		for _, prefix := range errorPrefixes {
			if bytes.HasPrefix(p, prefix) {
				resp.Final = line
				resp.Status = StatusError
				return resp
			}
		}
		if bytes.HasPrefix(p, []byte(OK)) {
			resp.Final = line
			resp.Status = StatusOK
			return resp
		}

		if len(line) > 0 {
			resp.Lines = append(resp.Lines, line)
		}

		if end == len(p) {
			break
		}
		// skip "\r\n", or a bare "\r"
		next := end + 1
		if next < len(p) && p[next] == '\n' {
			next++
		}
		p = p[next:]
	}

	return resp
}

// First returns the first payload line that is not an echo of cmd. Both the
// command itself and its bare form without the "AT" prefix ("+CGSN" for
// "AT+CGSN") count as echoes.
func (r Response) First(cmd string) []byte {
	echo := []byte(cmd)
	bare := bytes.TrimPrefix(echo, []byte(CmdAt))
	for _, line := range r.Lines {
		if bytes.Equal(line, echo) || (len(bare) > 0 && bytes.Equal(line, bare)) {
			continue
		}
		return line
	}
	return nil
}
