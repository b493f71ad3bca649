//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultsDomain = "com.prowler.app"

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "prowler-data"
	}
	return filepath.Join(home, "Library", "Application Support", "prowler")
}

// defaultsBackend stores settings in UserDefaults through the defaults(1)
// tool.
type defaultsBackend struct {
	domain string
}

func newPlatformBackend() ConfigBackend {
	return &defaultsBackend{domain: defaultsDomain}
}

// errNoValue marks a defaults(1) exit status 1, which it uses for a key or
// domain that does not exist.
var errNoValue = errors.New("no such default")

func (b *defaultsBackend) run(verb, key string, extra ...string) (string, error) {
	args := append([]string{verb, b.domain, key}, extra...)
	out, err := exec.Command("defaults", args...).CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", errNoValue
		}
		return "", fmt.Errorf("defaults %s %s: %w (%s)", verb, key, err, text)
	}
	return text, nil
}

func (b *defaultsBackend) GetString(key string) (string, bool, error) {
	v, err := b.run("read", key)
	if errors.Is(err, errNoValue) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (b *defaultsBackend) GetInt(key string) (int, bool, error) {
	v, ok, err := b.GetString(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return n, true, nil
}

func (b *defaultsBackend) SetString(key, val string) error {
	_, err := b.run("write", key, "-string", val)
	return err
}

func (b *defaultsBackend) SetInt(key string, val int) error {
	_, err := b.run("write", key, "-int", strconv.Itoa(val))
	return err
}

func (b *defaultsBackend) Delete(key string) error {
	if _, err := b.run("delete", key); err != nil && !errors.Is(err, errNoValue) {
		return err
	}
	return nil
}
