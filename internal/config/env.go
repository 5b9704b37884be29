package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvToken  = "TELENOTIFY_TOKEN"
	EnvChatID = "TELENOTIFY_CHAT_ID"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Existing variables win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// applyEnv lets secrets live outside the config file.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil {
		return
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvToken); ok && strings.TrimSpace(v) != "" {
		cfg.Telegram.Token = v
	}
	if v, ok := lookup(EnvChatID); ok && strings.TrimSpace(v) != "" {
		cfg.Telegram.ChatID = ChatID(v)
	}
}
