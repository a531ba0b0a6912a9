// Package main is the entry point for the coachd onboarding CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/openclaw/coachd/internal/credentials"
)

const version = "0.1.0"

func init() {
	// Load credentials from standard locations (silent if not found)
	// Priority: env vars > .env > ~/.config/coachd/credentials.toml
	if creds, _, err := credentials.Load(); err == nil && creds != nil {
		creds.Apply()
	}
	_ = godotenv.Load()
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "chat":
		runChat(args)
	case "transcript":
		showTranscript(args)
	case "inspect":
		inspectRecord(args)
	case "models":
		listModels(args)
	case "version":
		fmt.Printf("coachd version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: coachd <command> [options]

Commands:
  chat --user <id>        Interactive onboarding conversation
  transcript <user>       Show a user's onboarding timeline
  inspect <user>          Dump a user's record as YAML
  models [provider]       List available models
  version                 Show version
  help                    Show this help

Chat Options:
  --user <id>             User identifier (required)
  --config <path>         Config file path (default: coachd.toml)

Transcript Options:
  --follow                Watch the record and update live
  --verbose               Include saved data and pending plans
  --plain                 Print to stdout instead of the pager

Configuration:
  coachd.toml             [coach], [llm], [planner], [store], [limits]
  credentials.toml        API keys (also via env vars or .env)`)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
