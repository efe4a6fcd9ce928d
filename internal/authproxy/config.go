package authproxy

// Credentials maps a logical credential name (e.g. "anthropic", "openai",
// "github") to the secret material resolved for it, typically via a
// 1Password reference at proxy start.
type Credentials map[string]string

// Config is everything one session's proxy needs to run: its rule set,
// the resolved credentials those rules reference, and the access mode
// that gates the read-only filter.
type Config struct {
	SessionName string
	Rules       []Rule
	Credentials Credentials
	AccessMode  string
	Agent       string
}
