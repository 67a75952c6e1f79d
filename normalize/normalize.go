//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2025 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package normalize

import (
	"sort"
	"strconv"
)

// Constant marks one literal constant within a query string.
type Constant struct {
	// Location is the byte offset of the constant within the cleaned
	// query text.
	Location int
	// Length is the byte length of the constant token, or -1 when it is
	// not known yet and must be filled in by the scanner.
	Length int
	// Squashable marks a constant that stands in for a whole literal
	// list; its placeholder gets a trailing "/*, ... */" comment.
	Squashable bool
}

// Hints carries the constant locations the host found at parse time, plus
// the highest external parameter number already present in the query, so
// that generated placeholders do not collide with $n parameters the user
// wrote themselves.
type Hints struct {
	Constants            []Constant
	HighestExternParamID int
}

// Scanner lexes query text on behalf of Generate. Implementations wrap a
// real SQL lexer; a nil Scanner makes Generate skip every constant whose
// length is unknown.
type Scanner interface {
	// TokenAt returns the byte length of the token beginning exactly at
	// offset, or -1 if no token starts there.
	TokenAt(query string, offset int) int
	// NextToken returns the start offset and byte length of the first
	// token at or after offset, or (-1, -1) when there is none.
	NextToken(query string, offset int) (start, length int)
}

// Generate produces the representative text for query: every constant in
// h.Constants is replaced by a 1-based positional placeholder ($1, $2, …),
// offset by h.HighestExternParamID. Constants are processed in ascending
// location order; duplicate locations are replaced only once.
func Generate(query string, h *Hints, sc Scanner) string {
	consts := fillConstantLengths(query, h.Constants, sc)

	// each replacement adds at most 10 bytes over a 1-byte constant
	out := make([]byte, 0, len(query)+10*len(consts)+1)

	paramID := h.HighestExternParamID
	lastOff := 0
	for _, c := range consts {
		if c.Length < 0 || c.Location >= len(query) || c.Location+c.Length > len(query) {
			continue
		}
		if c.Location < lastOff {
			// overlapping with a previous replacement, ignore
			continue
		}
		paramID++
		out = append(out, query[lastOff:c.Location]...)
		out = append(out, '$')
		out = strconv.AppendInt(out, int64(paramID), 10)
		if c.Squashable {
			out = append(out, " /*, ... */"...)
		}
		lastOff = c.Location + c.Length
	}
	out = append(out, query[lastOff:]...)
	return string(out)
}

// fillConstantLengths sorts the constants by location and lexes the query
// to determine the length of every constant whose length is unknown.
func fillConstantLengths(query string, consts []Constant, sc Scanner) []Constant {
	out := make([]Constant, len(consts))
	copy(out, consts)
	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })

	lastLoc := -1
	for i := range out {
		if out[i].Location == lastLoc {
			// duplicate location, e.g. a constant referenced twice by
			// the parse tree; only the first occurrence is replaced
			out[i].Length = -1
			continue
		}
		lastLoc = out[i].Location

		if out[i].Length >= 0 {
			continue
		}
		if sc == nil {
			continue
		}
		loc := out[i].Location
		if loc >= len(query) {
			continue
		}
		n := sc.TokenAt(query, loc)
		if n <= 0 {
			continue
		}
		if query[loc] == '-' {
			// a leading minus is lexed as its own token but belongs to
			// the negative numeric literal; consume the next token too
			start, length := sc.NextToken(query, loc+n)
			if start >= 0 {
				n = start + length - loc
			}
		}
		out[i].Length = n
	}
	return out
}
