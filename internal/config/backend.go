package config

// ConfigBackend is where persisted settings live between runs: UserDefaults
// on macOS, a JSON file elsewhere. ok is false when key has never been set.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
