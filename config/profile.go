package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// profilesEnv overrides the profiles file location, for scripted runs that
// ship their own profiles next to the job instead of in the user config.
const profilesEnv = "TETHER_PROFILES"

// ProfilesFile returns the path of the host profiles file: $TETHER_PROFILES
// when set, otherwise profiles.yaml under the platform user config
// directory.
func ProfilesFile() string {
	if path := os.Getenv(profilesEnv); path != "" {
		return path
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		// No resolvable home; fall back to the working directory so the
		// CLI still has somewhere deterministic to look.
		dir = "."
	}
	return filepath.Join(dir, "tether", "profiles.yaml")
}

// Duration wraps time.Duration so profile files can use "5s" notation.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped standard duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Profile is a saved connection target for the CLI: everything needed to
// reach a host and recognise its prompts.
type Profile struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port,omitempty"`
	User string `yaml:"user,omitempty"`

	Prompt         string `yaml:"prompt,omitempty"`
	LoginPrompt    string `yaml:"login_prompt,omitempty"`
	PasswordPrompt string `yaml:"password_prompt,omitempty"`

	ConnectTimeout  Duration `yaml:"connect_timeout,omitempty"`
	SocketTimeout   Duration `yaml:"socket_timeout,omitempty"`
	FullLineTimeout Duration `yaml:"full_line_timeout,omitempty"`

	PruneControlSequences bool `yaml:"prune_ctrl_seq,omitempty"`
}

// Profiles maps profile names to their settings.
type Profiles map[string]Profile

// LoadProfiles reads a profiles file. A missing file is not an error; it
// just means no profiles are defined yet.
func LoadProfiles(path string) (Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Profiles{}, nil
		}
		return nil, fmt.Errorf("reading profiles: %w", err)
	}

	var profiles Profiles
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("parsing profiles %s: %w", path, err)
	}
	if profiles == nil {
		profiles = Profiles{}
	}
	return profiles, nil
}

// Lookup returns the named profile.
func (p Profiles) Lookup(name string) (Profile, error) {
	profile, ok := p[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q", name)
	}
	return profile, nil
}
