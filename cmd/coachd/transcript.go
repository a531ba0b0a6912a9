package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openclaw/coachd/internal/config"
	"github.com/openclaw/coachd/internal/store"
	"github.com/openclaw/coachd/internal/transcript"
)

func showTranscript(args []string) {
	var (
		userID     string
		configPath string
		follow     bool
		verbose    bool
		plain      bool
	)
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--follow", "-f":
			follow = true
		case "--verbose", "-v":
			verbose = true
		case "--plain":
			plain = true
		case "--config":
			if i+1 < len(args) {
				i++
				configPath = args[i]
			}
		default:
			if userID == "" {
				userID = args[i]
			} else {
				fatal("unknown option: %s", args[i])
			}
		}
	}
	if userID == "" {
		fatal("usage: coachd transcript <user> [--follow] [--verbose] [--plain]")
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fatal("%v", err)
	}

	render := func() (string, error) {
		data, err := recordJSON(cfg, userID)
		if err != nil {
			return "", err
		}
		var buf bytes.Buffer
		if err := transcript.New(&buf, verbose).RenderJSON(data); err != nil {
			return "", err
		}
		return buf.String(), nil
	}

	content, err := render()
	if err != nil {
		fatal("%v", err)
	}

	if plain {
		fmt.Print(content)
		return
	}

	pager := transcript.NewPager(fmt.Sprintf("onboarding: %s", userID))
	if follow {
		if cfg.Store.Backend != "file" {
			fatal("--follow requires the file store backend")
		}
		err = pager.RunLive(recordFilePath(cfg, userID), render)
	} else {
		err = pager.Run(content)
	}
	if err != nil {
		fatal("%v", err)
	}
}

// recordJSON loads a user's record in its JSON form, regardless of
// backend.
func recordJSON(cfg *config.Config, userID string) ([]byte, error) {
	if cfg.Store.Backend == "file" {
		data, err := os.ReadFile(recordFilePath(cfg, userID))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("no onboarding record for %s", userID)
			}
			return nil, err
		}
		return data, nil
	}

	s, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	rec, err := s.Load(context.Background(), userID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec)
}

func recordFilePath(cfg *config.Config, userID string) string {
	return filepath.Join(cfg.Store.Path, userID+".json")
}
