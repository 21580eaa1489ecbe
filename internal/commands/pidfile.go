package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func writePidfile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("pidfile dir: %w", err)
		}
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func readPidfile(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read pidfile: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pidfile %s: invalid pid %q", path, strings.TrimSpace(string(b)))
	}
	return pid, nil
}

func removePidfile(path string) {
	_ = os.Remove(path)
}
