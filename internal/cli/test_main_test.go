package cli

import (
	"fmt"
	"os"
	"testing"

	"github.com/klauern/blocksync/internal/util"
)

func TestMain(m *testing.M) {
	tempHome, err := os.MkdirTemp("", "blocksync-home-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp HOME: %v\n", err)
		os.Exit(1)
	}

	restore := map[string]*string{}
	for _, key := range []string{"HOME", util.HomeEnv, "BLOCKSYNC_CONFIG"} {
		if v, ok := os.LookupEnv(key); ok {
			restore[key] = &v
		} else {
			restore[key] = nil
		}
	}
	_ = os.Setenv("HOME", tempHome)
	_ = os.Setenv(util.HomeEnv, tempHome)
	_ = os.Unsetenv("BLOCKSYNC_CONFIG")

	code := m.Run()

	for key, v := range restore {
		if v != nil {
			_ = os.Setenv(key, *v)
		} else {
			_ = os.Unsetenv(key)
		}
	}
	_ = os.RemoveAll(tempHome)

	os.Exit(code)
}
