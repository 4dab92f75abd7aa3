// Package config loads the tool-wide defaults that apply across every
// subdir in a container repository: whether tracing is on, where its
// log file lives, the author identity to fall back to when one can't be
// read from the container's own git config, and the network timeout
// applied to fetch/push. This is deliberately separate from the
// per-subdir record, which is owned by internal/subdir and never reads
// or writes through this package.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Defaults is the tool-wide configuration, optionally read from
// ~/.config/git-subdir/config.toml and overridable by GIT_SUBDIR_*
// environment variables.
type Defaults struct {
	Debug          bool
	LogFile        string
	AuthorName     string
	AuthorEmail    string
	NetworkTimeout time.Duration
}

type fileDefaults struct {
	Debug          bool   `toml:"debug"`
	LogFile        string `toml:"log_file"`
	NetworkTimeout string `toml:"network_timeout"`
	Author         struct {
		Name  string `toml:"name"`
		Email string `toml:"email"`
	} `toml:"author"`
}

// Load reads defaults from the standard config path and environment,
// returning zero-value Defaults (debug off, no log file, no timeout
// override, no author fallback) if no config file is present. The TOML
// file itself is decoded with BurntSushi/toml; viper only layers the
// GIT_SUBDIR_* environment overrides on top of the decoded values.
func Load() (Defaults, error) {
	var file fileDefaults
	path := configFilePath()
	if data, err := os.ReadFile(path); err == nil {
		if _, derr := toml.Decode(string(data), &file); derr != nil {
			return Defaults{}, derr
		}
	} else if !os.IsNotExist(err) {
		return Defaults{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("GIT_SUBDIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("debug", file.Debug)
	v.SetDefault("log_file", file.LogFile)
	v.SetDefault("author_name", file.Author.Name)
	v.SetDefault("author_email", file.Author.Email)
	v.SetDefault("network_timeout", file.NetworkTimeout)

	timeout, err := time.ParseDuration(v.GetString("network_timeout"))
	if err != nil {
		timeout = 0
	}

	return Defaults{
		Debug:          v.GetBool("debug"),
		LogFile:        v.GetString("log_file"),
		AuthorName:     v.GetString("author_name"),
		AuthorEmail:    v.GetString("author_email"),
		NetworkTimeout: timeout,
	}, nil
}

func configFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "git-subdir", "config.toml")
}
