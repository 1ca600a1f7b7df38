// Package guard flips the runtime into test mode when imported for side effects, so
// commands under test never dial PostgreSQL or Redis.
package guard

import (
	"os"
	"sync"
)

const testModeEnv = "STITCHLINE_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(testModeEnv) == "" {
			_ = os.Setenv(testModeEnv, "1")
		}
	})
}
