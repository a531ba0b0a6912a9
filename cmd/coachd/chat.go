package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openclaw/coachd/internal/config"
	"github.com/openclaw/coachd/internal/llm"
	"github.com/openclaw/coachd/internal/logging"
	"github.com/openclaw/coachd/internal/onboarding"
	"github.com/openclaw/coachd/internal/profile"
	"github.com/openclaw/coachd/internal/store"
)

func runChat(args []string) {
	var userID, configPath string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--user", "-u":
			if i+1 < len(args) {
				i++
				userID = args[i]
			}
		case "--config":
			if i+1 < len(args) {
				i++
				configPath = args[i]
			}
		default:
			fatal("unknown option: %s", args[i])
		}
	}
	if userID == "" {
		fatal("--user is required")
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fatal("%v", err)
	}

	orch, cleanup, err := buildOrchestrator(cfg)
	if err != nil {
		fatal("%v", err)
	}
	defer cleanup()

	fmt.Printf("Chatting with %s (user %s). Type 'exit' to quit.\n\n", cfg.Coach.Name, userID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "exit" || text == "quit" {
			break
		}

		res, err := orch.SubmitTurn(context.Background(), userID, text)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}

		fmt.Printf("\n%s> %s\n\n", cfg.Coach.Name, res.Reply)
		if res.Completed {
			fmt.Println("Onboarding complete. See you in the app!")
			break
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.LoadDefault()
}

// buildOrchestrator wires the store, providers, planner, and
// materializer from configuration. The returned cleanup closes any
// database handles.
func buildOrchestrator(cfg *config.Config) (*onboarding.Orchestrator, func(), error) {
	logger := logging.New()

	var (
		s       store.Store
		closers []func()
	)
	switch cfg.Store.Backend {
	case "sqlite":
		ss, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		closers = append(closers, func() { ss.Close() })
		s = ss
	default:
		fs, err := store.NewFileStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		s = fs
	}

	provider, err := buildProvider(cfg.LLM)
	if err != nil {
		return nil, nil, fmt.Errorf("chat model: %w", err)
	}
	plannerProvider, err := buildProvider(cfg.PlannerConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("planner model: %w", err)
	}

	planner := onboarding.NewLLMPlanner(plannerProvider,
		time.Duration(cfg.Limits.PlanTimeoutSec)*time.Second)
	agent := onboarding.NewAgent(cfg.Coach.Name, provider, planner,
		time.Duration(cfg.Limits.ChatTimeoutSec)*time.Second, logger)

	mat, err := profile.NewMaterializer(profileDBPath(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("open profile database: %w", err)
	}
	closers = append(closers, func() { mat.Close() })

	orch := onboarding.NewOrchestrator(s, agent, mat, cfg.Limits.ApplyRetries, logger)
	orch.OnProfileCreated = func(userID, profileID string) {
		logger.ProfileCreated(userID, profileID)
	}

	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}
	return orch, cleanup, nil
}

func buildProvider(llmCfg config.LLMConfig) (llm.Provider, error) {
	return llm.NewProvider(llm.FantasyConfig{
		Provider:  llmCfg.Provider,
		Model:     llmCfg.Model,
		APIKey:    config.GetAPIKey(llmCfg),
		BaseURL:   llmCfg.BaseURL,
		MaxTokens: llmCfg.MaxTokens,
	})
}

// profileDBPath places the profile database next to the onboarding
// store.
func profileDBPath(cfg *config.Config) string {
	if cfg.Store.Backend == "sqlite" {
		return filepath.Join(filepath.Dir(cfg.Store.Path), "profiles.db")
	}
	return filepath.Join(cfg.Store.Path, "profiles.db")
}
