package main

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// inspectRecord dumps a user's onboarding record as YAML, a quick way
// to see saved phase data and pending proposals during debugging.
func inspectRecord(args []string) {
	var userID, configPath string
	for i := 0; i < len(args); i++ {
		switch args[i] {
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
		fatal("usage: coachd inspect <user>")
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fatal("%v", err)
	}

	data, err := recordJSON(cfg, userID)
	if err != nil {
		fatal("%v", err)
	}

	// Round-trip through generic JSON so raw phase data renders as
	// structured YAML instead of byte arrays.
	var generic map[string]interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		fatal("parse record: %v", err)
	}

	out, err := yaml.Marshal(generic)
	if err != nil {
		fatal("render record: %v", err)
	}
	fmt.Print(string(out))
}
