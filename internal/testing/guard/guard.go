package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("NOTEGATE_TEST_MODE") == "" {
			_ = os.Setenv("NOTEGATE_TEST_MODE", "1")
		}
	})
}
