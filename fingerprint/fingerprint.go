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

// Package fingerprint provides the PostgreSQL-backed statement collaborators:
// a stable 64-bit query identifier, a lexer for token lengths and constant
// locations, and utility-statement detection. Everything here goes through
// pg_query, so identifiers match across servers and restarts.
package fingerprint

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/weaviate/querystats/normalize"
)

// Provider computes statement identity information. The zero value is ready
// to use.
type Provider struct{}

// QueryID returns the statement fingerprint of query as a signed 64-bit
// integer, or 0 when the query cannot be parsed. A zero identifier means
// "do not track", which is exactly the right behavior for garbage input.
func (Provider) QueryID(query string) int64 {
	fp, err := pg_query.FingerprintToUInt64(query)
	if err != nil {
		return 0
	}
	return int64(fp)
}

// IsUtility reports whether query contains any statement other than plain
// SELECT/INSERT/UPDATE/DELETE/MERGE. Unparsable input counts as utility.
func (Provider) IsUtility(query string) bool {
	result, err := pg_query.Parse(query)
	if err != nil {
		return true
	}
	for _, raw := range result.Stmts {
		stmt := raw.GetStmt()
		if stmt == nil {
			continue
		}
		switch stmt.Node.(type) {
		case *pg_query.Node_SelectStmt,
			*pg_query.Node_InsertStmt,
			*pg_query.Node_UpdateStmt,
			*pg_query.Node_DeleteStmt,
			*pg_query.Node_MergeStmt:
		default:
			return true
		}
	}
	return false
}

// ConstantLocations lexes query and returns the location of every literal
// constant, suitable as normalization hints for a statement whose parse
// tree is not available.
func ConstantLocations(query string) []normalize.Constant {
	result, err := pg_query.Scan(query)
	if err != nil {
		return nil
	}
	var out []normalize.Constant
	for _, tok := range result.Tokens {
		switch tok.Token {
		case pg_query.Token_ICONST, pg_query.Token_FCONST, pg_query.Token_SCONST,
			pg_query.Token_BCONST, pg_query.Token_XCONST:
			out = append(out, normalize.Constant{
				Location: int(tok.Start),
				Length:   int(tok.End - tok.Start),
			})
		}
	}
	return out
}
