package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"gatekeeper"
)

// problem is a single lint finding against a config file.
type problem struct {
	index int
	msg   string
}

func main() {
	configPath := flag.String("config", "config.yml", "Path to config file to lint")
	strict := flag.Bool("strict", false, "Treat warnings as errors")
	flag.Parse()

	cfg, err := gatekeeper.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "banklint: %v\n", err)
		os.Exit(1)
	}

	errs, warns := lint(cfg)

	for _, p := range errs {
		fmt.Printf("ERROR  challenge %d: %s\n", p.index, p.msg)
	}
	for _, p := range warns {
		fmt.Printf("WARN   challenge %d: %s\n", p.index, p.msg)
	}

	fmt.Printf("%s: %d challenges, %d errors, %d warnings\n",
		*configPath, len(cfg.Challenges), len(errs), len(warns))

	if len(errs) > 0 || (*strict && len(warns) > 0) {
		os.Exit(1)
	}
}

// lint checks every challenge in the config and returns errors and
// warnings separately. Errors would break verification at runtime,
// warnings are quality issues an operator should look at.
func lint(cfg *gatekeeper.Config) (errs, warns []problem) {
	if len(cfg.Challenges) == 0 {
		warns = append(warns, problem{-1, "bank is empty, new members will not be challenged"})
	}

	seen := make(map[string]int)
	for i, ch := range cfg.Challenges {
		if err := ch.Validate(); err != nil {
			errs = append(errs, problem{i, err.Error()})
			continue
		}

		key := strings.ToLower(strings.TrimSpace(ch.Question))
		if first, ok := seen[key]; ok {
			errs = append(errs, problem{i, fmt.Sprintf("duplicate of challenge %d: %q", first, ch.Question)})
		} else {
			seen[key] = i
		}

		for _, wrong := range ch.Wrong {
			if strings.EqualFold(strings.TrimSpace(wrong), strings.TrimSpace(ch.Answer)) {
				errs = append(errs, problem{i, fmt.Sprintf("wrong answer %q matches the correct answer", wrong)})
			}
		}

		if len(ch.Wrong) < 2 {
			warns = append(warns, problem{i, "fewer than two wrong answers makes guessing easy"})
		}
		if !strings.HasSuffix(strings.TrimSpace(ch.Question), "?") {
			warns = append(warns, problem{i, "question does not end with a question mark"})
		}
	}
	return errs, warns
}
