package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("RULEMAKER_TEST_MODE") == "" {
			_ = os.Setenv("RULEMAKER_TEST_MODE", "1")
		}
	})
}
