//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	json "github.com/couchbase/go_json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/options"
	"github.com/couchbase/kvsdk/results"
	"github.com/couchbase/kvsdk/scan"
	"github.com/couchbase/kvsdk/subdoc"
)

// command is shared by the cobra tree and the interactive shell.
type command struct {
	use   string
	short string
	min   int
	max   int // -1 for no limit
	run   func(ctx context.Context, s *session, args []string) error
}

var commands = []*command{
	{"get [id] [path]...", "Get a document, or the given paths of it", 1, -1, runGet},
	{"insert [id] [value]", "Insert a document that must not exist", 2, 2, runStore},
	{"upsert [id] [value]", "Insert or replace a document", 2, 2, runStore},
	{"replace [id] [value]", "Replace a document that must exist", 2, 2, runStore},
	{"remove [id]", "Remove a document", 1, 1, runRemove},
	{"exists [id]", "Check whether a document exists", 1, 1, runExists},
	{"touch [id] [expiry]", "Set the expiry of a document, e.g. 10m", 2, 2, runTouch},
	{"lookup [id] [path]...", "Read paths of a document through the sub-document service", 2, -1, runLookup},
	{"mutate [id] [path] [value]", "Upsert one path of a document, creating parents", 3, 3, runMutate},
	{"incr [id] [delta] [initial]", "Increment a counter", 1, 3, runCounter},
	{"decr [id] [delta] [initial]", "Decrement a counter, stopping at zero", 1, 3, runCounter},
	{"scan [prefix]", "List the documents of the collection, optionally by key prefix", 0, 1, runScan},
	{"query [statement]...", "Run a N1QL statement", 1, -1, runQuery},
}

func (c *command) name() string {
	name, _, _ := strings.Cut(c.use, " ")
	return name
}

func (c *command) checkArgs(args []string) error {
	if len(args) < c.min || (c.max >= 0 && len(args) > c.max) {
		return errors.NewInvalidArgument("usage: %s", c.use)
	}
	return nil
}

func addCommands(root *cobra.Command) {
	for _, c := range commands {
		c := c
		args := cobra.MinimumNArgs(c.min)
		if c.max >= 0 {
			args = cobra.RangeArgs(c.min, c.max)
		}
		root.AddCommand(&cobra.Command{
			Use:   c.use,
			Short: c.short,
			Args:  args,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.run(cmd.Context(), current, append([]string{c.name()}, args...))
			},
		})
	}
}

// Run functions receive the command name as args[0].

func timeout() time.Duration {
	return viper.GetDuration("timeout")
}

func expiry() options.Expiry {
	if d := viper.GetDuration("expiry"); d > 0 {
		return options.ExpiryDuration(d)
	}
	return options.ExpiryNone()
}

func runGet(ctx context.Context, s *session, args []string) error {
	opts := options.DefaultGet()
	opts.Timeout = timeout()
	opts.Project(args[2:]...)
	res, err := s.collection.Get(ctx, args[1], opts)
	if err != nil {
		return err
	}
	var content interface{}
	if err := res.Content(&content); err != nil {
		return err
	}
	return PrintJSON(s.out, map[string]interface{}{
		"id":      args[1],
		"cas":     res.Cas(),
		"content": content,
	})
}

func runStore(ctx context.Context, s *session, args []string) error {
	id, value := args[1], ParseValue(args[2])
	var res *results.MutationResult
	var err error
	switch args[0] {
	case "insert":
		opts := options.DefaultInsert()
		opts.Timeout, opts.Expiry = timeout(), expiry()
		res, err = s.collection.Insert(ctx, id, value, opts)
	case "replace":
		opts := options.DefaultReplace()
		opts.Timeout, opts.Expiry = timeout(), expiry()
		res, err = s.collection.Replace(ctx, id, value, opts)
	default:
		opts := options.DefaultUpsert()
		opts.Timeout, opts.Expiry = timeout(), expiry()
		res, err = s.collection.Upsert(ctx, id, value, opts)
	}
	if err != nil {
		return err
	}
	printMutation(s, res)
	return nil
}

func printMutation(s *session, res *results.MutationResult) {
	if t := res.MutationToken(); t != nil {
		fmt.Fprintf(s.out, "cas: %d token: %s\n", res.Cas(), t)
		return
	}
	fmt.Fprintf(s.out, "cas: %d\n", res.Cas())
}

func runRemove(ctx context.Context, s *session, args []string) error {
	opts := options.DefaultRemove()
	opts.Timeout = timeout()
	res, err := s.collection.Remove(ctx, args[1], opts)
	if err != nil {
		return err
	}
	printMutation(s, res)
	return nil
}

func runExists(ctx context.Context, s *session, args []string) error {
	opts := options.DefaultExists()
	opts.Timeout = timeout()
	res, err := s.collection.Exists(ctx, args[1], opts)
	if err != nil {
		return err
	}
	if res.Exists() {
		fmt.Fprintf(s.out, "exists: true cas: %d\n", res.Cas())
	} else {
		fmt.Fprintln(s.out, "exists: false")
	}
	return nil
}

func runTouch(ctx context.Context, s *session, args []string) error {
	d, err := time.ParseDuration(args[2])
	if err != nil {
		return errors.NewInvalidArgument("expiry %q: %v", args[2], err)
	}
	opts := options.DefaultTouch()
	opts.Timeout = timeout()
	res, err := s.collection.Touch(ctx, args[1], options.ExpiryDuration(d), opts)
	if err != nil {
		return err
	}
	printMutation(s, res)
	return nil
}

func runLookup(ctx context.Context, s *session, args []string) error {
	paths := args[2:]
	specs := make([]*subdoc.LookupInSpec, len(paths))
	for i, p := range paths {
		specs[i] = subdoc.LookupGet(p)
	}
	opts := options.DefaultLookupIn()
	opts.Timeout = timeout()
	res, err := s.collection.LookupIn(ctx, args[1], specs, opts)
	if err != nil {
		return err
	}
	rows := make([][]string, len(paths))
	for i, p := range paths {
		var v interface{}
		if err := res.ContentAt(i, &v); err != nil {
			rows[i] = []string{p, "error: " + err.Error()}
			continue
		}
		b, _ := json.Marshal(v)
		rows[i] = []string{p, string(b)}
	}
	PrintTable(s.out, []string{"PATH", "VALUE"}, rows)
	return nil
}

func runMutate(ctx context.Context, s *session, args []string) error {
	spec, err := subdoc.MutateUpsert(args[2], ParseValue(args[3]))
	if err != nil {
		return err
	}
	opts := options.DefaultMutateIn()
	opts.Timeout = timeout()
	res, err := s.collection.MutateIn(ctx, args[1], []*subdoc.MutateInSpec{spec.CreatePath()}, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "cas: %d\n", res.Cas())
	return nil
}

func runCounter(ctx context.Context, s *session, args []string) error {
	delta := int64(1)
	if len(args) > 2 {
		d, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return errors.NewInvalidArgument("delta %q: %v", args[2], err)
		}
		delta = d
	}
	var initial *uint64
	if len(args) > 3 {
		v, err := strconv.ParseUint(args[3], 10, 64)
		if err != nil {
			return errors.NewInvalidArgument("initial %q: %v", args[3], err)
		}
		initial = &v
	}

	var res *results.CounterResult
	if args[0] == "decr" {
		opts, err := options.NewDecrement(delta)
		if err != nil {
			return err
		}
		opts.Timeout, opts.Initial = timeout(), initial
		res, err = s.collection.Binary().Decrement(ctx, args[1], opts)
		if err != nil {
			return err
		}
	} else {
		opts, err := options.NewIncrement(delta)
		if err != nil {
			return err
		}
		opts.Timeout, opts.Initial = timeout(), initial
		res, err = s.collection.Binary().Increment(ctx, args[1], opts)
		if err != nil {
			return err
		}
	}
	fmt.Fprintf(s.out, "%d\n", res.Content())
	return nil
}

func runScan(ctx context.Context, s *session, args []string) error {
	var st scan.Type = scan.RangeScan{}
	if len(args) > 1 {
		st = scan.PrefixScan{Prefix: args[1]}
	}
	opts := options.DefaultScan()
	opts.Timeout = timeout()
	res, err := s.collection.Scan(st, opts)
	if err != nil {
		return err
	}
	defer res.Close()

	var rows [][]string
	err = res.Each(ctx, func(item *scan.Item) error {
		row := []string{item.ID, "", ""}
		if d := item.Document; d != nil {
			row[1] = strconv.FormatUint(d.Cas, 10)
			if d.Expiry != 0 {
				row[2] = d.ExpiryTime().Format(time.RFC3339)
			}
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return err
	}
	PrintTable(s.out, []string{"ID", "CAS", "EXPIRY"}, rows)
	fmt.Fprintf(s.out, "(%d documents)\n", len(rows))
	return nil
}

func runQuery(ctx context.Context, s *session, args []string) error {
	opts := options.DefaultQuery()
	opts.Timeout = timeout()
	res, err := s.cluster.Query(ctx, strings.Join(args[1:], " "), opts)
	if err != nil {
		return err
	}
	for _, row := range res.Rows() {
		fmt.Fprintln(s.out, string(row))
	}
	fmt.Fprintf(s.out, "(%d rows)\n", res.Len())
	return nil
}
