package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/openclaw/coachd/internal/llm"
)

// listModels prints the model catalog, optionally filtered by provider.
func listModels(args []string) {
	var provider string
	if len(args) > 0 {
		provider = args[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	models, err := llm.ListAllModels(ctx)
	if err != nil {
		fatal("fetch model catalog: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tMODEL\tCONTEXT\tIN $/1M\tOUT $/1M")
	for _, m := range models {
		if provider != "" && m.Provider != provider {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%.2f\n",
			m.Provider, m.ID, m.ContextWindow, m.CostPer1MIn, m.CostPer1MOut)
	}
	w.Flush()
}
