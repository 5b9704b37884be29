package app

import (
	"fmt"
	"strings"

	"telenotify/internal/admin"
	"telenotify/internal/config"
	"telenotify/internal/ingest"
	"telenotify/internal/storage"
	logx "telenotify/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	if cfg == nil {
		return logx.Config{Level: "info", Console: true}
	}
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled:    l.File.Enabled,
			Path:       l.File.Path,
			MaxSizeMB:  l.File.MaxSizeMB,
			MaxBackups: l.File.MaxBackups,
			MaxAgeDays: l.File.MaxAgeDays,
			Compress:   l.File.Compress,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
	}
	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		busy, err := sc.BusyWait()
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapIngestConfig(cfg *config.Config) ingest.Config {
	in := cfg.Ingest
	return ingest.Config{
		Listen:     strings.TrimSpace(in.Listen),
		AuthToken:  strings.TrimSpace(in.AuthToken),
		RatePerSec: in.RatePerSec,
	}
}

func mapAdminTelegramConfig(snap *config.Snapshot) (admin.TelegramConfig, error) {
	tc := snap.Raw.Admin.Telegram
	poll, err := tc.Poll()
	if err != nil {
		return admin.TelegramConfig{}, err
	}
	return admin.TelegramConfig{
		Token:       snap.Token,
		APIBase:     snap.Policy.APIBase,
		PollTimeout: poll,
		Owners:      append([]int64(nil), tc.OwnerUserIDs...),
	}, nil
}
