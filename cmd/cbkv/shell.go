//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/couchbase/kvsdk/logging"
)

const PROMPT = "cbkv> "

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell on the collection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShell(cmd.Context(), current, HistoryPath())
	},
}

func runShell(ctx context.Context, s *session, histPath string) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(false)
	line.SetCompleter(complete)

	if histPath != "" {
		if err := readHistory(line, histPath); err != nil {
			logging.Warnf("cbkv: history %s: %v", histPath, err)
		}
	}

	loc := s.collection.Location()
	fmt.Fprintf(s.out, "Connected to %s. Type help for the list of commands.\n", loc)
	for {
		input, err := line.Prompt(PROMPT)
		if err != nil {
			if err != io.EOF && err != liner.ErrPromptAborted {
				return err
			}
			break
		}
		input = strings.TrimSpace(input)
		if input == "" || strings.HasPrefix(input, "#") {
			continue
		}
		line.AppendHistory(input)
		if histPath != "" {
			if err := writeHistory(line, histPath); err != nil {
				logging.Warnf("cbkv: history %s: %v", histPath, err)
			}
		}
		if quit := dispatch(ctx, s, input); quit {
			break
		}
	}
	return nil
}

// dispatch runs one shell line and reports whether the shell should exit.
// Errors are printed and the shell carries on.
func dispatch(ctx context.Context, s *session, input string) bool {
	words, err := SplitLine(input)
	if err != nil {
		fmt.Fprintln(s.out, "error:", err)
		return false
	}
	switch words[0] {
	case "exit", "quit":
		return true
	case "help":
		printHelp(s.out)
		return false
	}
	for _, c := range commands {
		if c.name() != words[0] {
			continue
		}
		if err := c.checkArgs(words[1:]); err != nil {
			fmt.Fprintln(s.out, "error:", err)
		} else if err := c.run(ctx, s, words); err != nil {
			fmt.Fprintln(s.out, "error:", err)
		}
		return false
	}
	fmt.Fprintf(s.out, "error: unknown command %q\n", words[0])
	return false
}

func printHelp(w io.Writer) {
	rows := make([][]string, 0, len(commands)+1)
	for _, c := range commands {
		rows = append(rows, []string{c.use, c.short})
	}
	rows = append(rows, []string{"exit", "Leave the shell"})
	PrintTable(w, []string{"COMMAND", "DESCRIPTION"}, rows)
}

func complete(line string) []string {
	var rv []string
	for _, c := range commands {
		if strings.HasPrefix(c.name(), line) {
			rv = append(rv, c.name()+" ")
		}
	}
	return rv
}

func readHistory(line *liner.State, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	_, err = line.ReadHistory(bufio.NewReader(f))
	// over long lines are dropped by liner, not worth reporting
	if err != nil && strings.Contains(err.Error(), "too long") {
		err = nil
	}
	return err
}

func writeHistory(line *liner.State, path string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err = line.WriteHistory(w); err != nil {
		return err
	}
	return w.Flush()
}
