package preferences

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kalambet/prowler/internal/storage"
)

// ThemeKey is the state-store key holding the persisted theme.
const ThemeKey = "theme"

const (
	Dark  = "dark"
	Light = "light"
)

// KV is the key/value surface preferences are stored in.
type KV interface {
	GetItem(key string) (string, error)
	SetItem(key, value string) error
}

// Preferences reads and writes user display preferences.
type Preferences struct {
	kv     KV
	getenv func(string) string
}

// New returns Preferences backed by kv.
func New(kv KV) *Preferences {
	return &Preferences{kv: kv, getenv: os.Getenv}
}

// Theme returns the persisted theme, or the terminal's preference when none
// is stored.
func (p *Preferences) Theme() string {
	if v, err := p.kv.GetItem(ThemeKey); err == nil && (v == Dark || v == Light) {
		return v
	}
	return p.terminalTheme()
}

// SetTheme persists theme, which must be "dark" or "light".
func (p *Preferences) SetTheme(theme string) error {
	theme = strings.ToLower(strings.TrimSpace(theme))
	if theme != Dark && theme != Light {
		return fmt.Errorf("invalid theme %q: must be %q or %q", theme, Dark, Light)
	}
	if err := p.kv.SetItem(ThemeKey, theme); err != nil {
		return fmt.Errorf("saving theme: %w", err)
	}
	return nil
}

// Stored reports the persisted theme, if any.
func (p *Preferences) Stored() (string, bool, error) {
	v, err := p.kv.GetItem(ThemeKey)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading theme: %w", err)
	}
	return v, true, nil
}

// terminalTheme derives the theme from COLORFGBG ("fg;bg" or "fg;x;bg").
// Light backgrounds are palette entries 7 and 15; anything else, or no
// hint at all, is dark.
func (p *Preferences) terminalTheme() string {
	v := p.getenv("COLORFGBG")
	if v == "" {
		return Dark
	}
	parts := strings.Split(v, ";")
	bg, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return Dark
	}
	if bg == 7 || bg == 15 {
		return Light
	}
	return Dark
}
