package resthttp

import (
	"net/http"
	"strconv"
	"strings"
)

// ParseSizeFromHeaders returns the full resource size implied by
// Content-Length and/or Content-Range, or -1 if neither header yields a
// usable size. A Content-Range total of "*" (unknown) also yields -1.
func ParseSizeFromHeaders(headers http.Header) int64 {
	if cr := headers.Get("Content-Range"); cr != "" {
		if size, ok := parseContentRangeTotal(cr); ok {
			return size
		}
		return -1
	}
	if cl := headers.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			return n
		}
	}
	return -1
}

// parseContentRangeTotal parses "bytes start-end/total" and returns total,
// or false if the unit isn't "bytes" or total is the unknown marker "*".
func parseContentRangeTotal(cr string) (int64, bool) {
	fields := strings.SplitN(cr, " ", 2)
	if len(fields) != 2 || fields[0] != "bytes" {
		return 0, false
	}
	slash := strings.LastIndex(fields[1], "/")
	if slash < 0 {
		return 0, false
	}
	total := fields[1][slash+1:]
	if total == "*" {
		return 0, false
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
