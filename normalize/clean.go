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

// Package normalize prepares raw query strings for storage: it extracts a
// single statement out of a multi-statement source string and substitutes
// positional placeholders for the constants the host located at parse time.
package normalize

import "strings"

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f' || b == '\v'
}

// CleanText extracts the statement at location within query and trims it.
// location is the starting byte offset of the statement within a possibly
// multi-statement source string, length its byte count. A length of -1
// means "to the end of the string". Leading ASCII whitespace and leading
// "--" line comments are stripped, as is trailing whitespace.
func CleanText(query string, location, length int) string {
	if location < 0 || location > len(query) {
		location = 0
		length = -1
	}
	text := query[location:]
	if length >= 0 && length < len(text) {
		text = text[:length]
	}

	for {
		start := 0
		for start < len(text) && isSpace(text[start]) {
			start++
		}
		text = text[start:]
		if !strings.HasPrefix(text, "--") {
			break
		}
		nl := strings.IndexByte(text, '\n')
		if nl < 0 {
			return ""
		}
		text = text[nl+1:]
	}

	end := len(text)
	for end > 0 && isSpace(text[end-1]) {
		end--
	}
	return text[:end]
}
