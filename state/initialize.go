package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cfinav/misc"
)

// newLocalEnv creates a new LocalEnv instance with default values
func newLocalEnv() *LocalEnv {
	return &LocalEnv{
		start: time.Now(),
	}
}

// defaultCachePath places cache database into user cache directory.
func defaultCachePath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("unable to find user cache directory: %w", err)
	}
	dir = filepath.Join(dir, misc.GetAppName())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("unable to create cache directory: %w", err)
	}
	return filepath.Join(dir, "locations.db"), nil
}
