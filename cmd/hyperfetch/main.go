// SPDX-License-Identifier: LGPL-3.0-or-later

// Command hyperfetch is an interactive CLI that builds a download batch
// with a survey-driven wizard and runs it against an in-process Engine,
// rendering progress with a bar or full-screen TUI.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	survey "github.com/AlecAivazis/survey/v2"

	"hyperfetch"
	"hyperfetch/internal/taskstate"
	"hyperfetch/logger"
	"hyperfetch/reporter"
	"hyperfetch/resolver"
)

func main() {
	savePath := flag.String("out", ".", "directory to save downloads into")
	concurrency := flag.Int("concurrency", 4, "maximum concurrent downloads")
	tui := flag.Bool("tui", false, "render a full-screen TUI instead of terminal bars")
	urlsFlag := flag.String("urls", "", "comma-separated URLs; skips the interactive prompt")
	flag.Parse()

	urls := parseURLs(*urlsFlag)
	if len(urls) == 0 {
		var err error
		urls, err = promptForURLs()
		if err != nil {
			fmt.Fprintf(os.Stderr, "prompt failed: %v\n", err)
			os.Exit(1)
		}
	}
	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "no URLs to download")
		os.Exit(1)
	}

	opts := hyperfetch.DefaultOptions()
	opts.SavePath = *savePath
	opts.CreateDirs = true
	opts.Concurrency = *concurrency

	var rep hyperfetch.Reporter
	var tuiReporter *reporter.TUIReporter
	if *tui {
		tuiReporter = reporter.NewTUIReporter()
		rep = tuiReporter
	} else {
		rep = reporter.NewBarReporter(os.Stdout)
	}

	engine, err := hyperfetch.New(opts, resolver.URLResolver{}, rep)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	engine.WithLogger(logger.New("warn"))

	requests := make([]hyperfetch.Request, 0, len(urls))
	for _, u := range urls {
		requests = append(requests, hyperfetch.NewURLRequest(u))
	}

	if err := engine.Start(requests); err != nil {
		fmt.Fprintf(os.Stderr, "start batch: %v\n", err)
		os.Exit(1)
	}

	for !allTerminal(engine) {
		time.Sleep(200 * time.Millisecond)
	}

	if tuiReporter != nil {
		time.Sleep(500 * time.Millisecond)
		tuiReporter.Stop()
	}
}

func parseURLs(flagValue string) []string {
	if flagValue == "" {
		return nil
	}
	parts := strings.Split(flagValue, ",")
	urls := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return urls
}

// promptForURLs runs a survey wizard collecting one or more URLs,
// the same Input-then-Confirm-more shape the teacher's VM creation
// wizard uses to collect repeatable fields.
func promptForURLs() ([]string, error) {
	var urls []string
	for {
		var url string
		prompt := &survey.Input{
			Message: "URL to download:",
			Help:    "Enter an http(s) URL; leave blank to finish",
		}
		if err := survey.AskOne(prompt, &url); err != nil {
			return nil, err
		}
		if url == "" {
			break
		}
		urls = append(urls, url)

		more := true
		confirmPrompt := &survey.Confirm{
			Message: "Add another URL?",
			Default: false,
		}
		if err := survey.AskOne(confirmPrompt, &more); err != nil {
			return nil, err
		}
		if !more {
			break
		}
	}
	return urls, nil
}

func allTerminal(engine *hyperfetch.Engine) bool {
	tasks := engine.Tasks()
	if len(tasks) == 0 {
		return false
	}
	for _, t := range tasks {
		if !taskstate.IsTerminal(t.State) {
			return false
		}
	}
	return true
}
