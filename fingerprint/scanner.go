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

package fingerprint

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Scanner adapts the PostgreSQL lexer to the normalize.Scanner interface.
// The zero value is ready to use.
type Scanner struct{}

// TokenAt returns the byte length of the token beginning exactly at offset,
// or -1 if no token starts there.
func (Scanner) TokenAt(query string, offset int) int {
	result, err := pg_query.Scan(query)
	if err != nil {
		return -1
	}
	for _, tok := range result.Tokens {
		if int(tok.Start) == offset {
			return int(tok.End - tok.Start)
		}
		if int(tok.Start) > offset {
			break
		}
	}
	return -1
}

// NextToken returns the start offset and byte length of the first token at
// or after offset, or (-1, -1) when there is none.
func (Scanner) NextToken(query string, offset int) (int, int) {
	result, err := pg_query.Scan(query)
	if err != nil {
		return -1, -1
	}
	for _, tok := range result.Tokens {
		if int(tok.Start) >= offset {
			return int(tok.Start), int(tok.End - tok.Start)
		}
	}
	return -1, -1
}
