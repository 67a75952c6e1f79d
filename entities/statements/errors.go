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

package statements

import "errors"

var (
	// ErrNotRunning is returned when statistics are requested before the
	// tracker was started or after it was shut down.
	ErrNotRunning = errors.New("statement statistics are not running")

	// ErrTextFileTooLarge is reported when a query text reservation would
	// push the external text file past its maximum size.
	ErrTextFileTooLarge = errors.New("query text file exceeds maximum size")

	// ErrDumpCorrupt marks an on-disk dump whose magic or version does not
	// match. The dump is ignored, never repaired.
	ErrDumpCorrupt = errors.New("statement statistics dump is corrupt")
)
