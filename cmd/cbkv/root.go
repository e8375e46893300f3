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
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/couchbase/kvsdk/cluster"
	"github.com/couchbase/kvsdk/collection"
	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/logging"
	"github.com/couchbase/kvsdk/logging/logger_golog"
)

const VERSION = "1.0.0"

// session is the connection shared by a one shot command or by every
// line of the shell.
type session struct {
	cluster    *cluster.Cluster
	collection *collection.Collection
	out        io.Writer
}

var current *session

var (
	RootCmd = &cobra.Command{
		Use:   "cbkv",
		Short: "Couchbase key-value command line client",
		Long: fmt.Sprintf(`cbkv (v%s)

Reads and writes documents of one collection through the key-value and
sub-document services. Every flag can also be set through a CBKV_
environment variable or a .env file, e.g. CBKV_CONNSTR.`, VERSION),
		SilenceUsage:      true,
		PersistentPreRunE: connect,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			disconnect()
		},
	}
	versionCmd = &cobra.Command{
		Use:               "version",
		Short:             "Print the version number of cbkv",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cbkv v%s\n", VERSION)
		},
	}
)

func init() {
	cobra.OnInitialize(InitConfig)

	flags := RootCmd.PersistentFlags()
	flags.String("connstr", "mem://", WrapString("Connection string: couchbase://, couchbases:// or mem:// for an in-process store"))
	flags.StringP("username", "u", "", WrapString("User name"))
	flags.StringP("password", "p", "", WrapString("Password, prompted for when a user name is given without one"))
	flags.String("cert-file", "", WrapString("Root CA file for couchbases:// connections"))
	flags.StringP("bucket", "b", "default", WrapString("Bucket name"))
	flags.String("scope", "_default", WrapString("Scope name"))
	flags.StringP("collection", "c", "_default", WrapString("Collection name"))
	flags.Duration("timeout", 0, WrapString("Per operation timeout, 0 selects the operation default"))
	flags.Duration("expiry", 0, WrapString("Expiry applied by insert, upsert and replace, 0 for none"))
	flags.String("log-level", "warn", WrapString("Log level: none, fatal, severe, error, warn, info, debug or trace"))
	flags.Bool("log-json", false, WrapString("Write log entries as JSON"))

	RootCmd.AddCommand(versionCmd)
	addCommands(RootCmd)
	RootCmd.AddCommand(shellCmd)
}

func setupLogging() error {
	name := viper.GetString("log-level")
	level, ok, filter := logging.ParseLevel(name)
	if !ok {
		return errors.NewInvalidArgument("unknown log level %q", name)
	}
	logging.SetLogger(logger_golog.NewLogger(os.Stderr, level, viper.GetBool("log-json")))
	if filter != "" {
		logging.SetDebugFilter(filter)
	}
	logging.Infof("cbkv: log level %s", logging.LogLevelString())
	return nil
}

func connect(cmd *cobra.Command, args []string) error {
	if current != nil {
		return nil
	}
	if err := BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := setupLogging(); err != nil {
		return err
	}

	connStr := viper.GetString("connstr")
	opts := &cluster.ClusterOptions{
		Username: viper.GetString("username"),
		Password: viper.GetString("password"),
		CertFile: viper.GetString("cert-file"),
	}
	if opts.Username != "" && opts.Password == "" && !strings.HasPrefix(connStr, "mem://") && IsTerminal() {
		pw, err := PromptPassword("Enter Password: ")
		if err != nil {
			return err
		}
		opts.Password = pw
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c, err := cluster.Connect(ctx, cluster.NewDefaultRegistry(), connStr, opts)
	if err != nil {
		return err
	}
	coll := c.Bucket(viper.GetString("bucket")).
		Scope(viper.GetString("scope")).
		Collection(viper.GetString("collection"))
	current = &session{cluster: c, collection: coll, out: cmd.OutOrStdout()}
	return nil
}

func disconnect() {
	if current == nil {
		return
	}
	if err := current.cluster.Close(); err != nil {
		logging.Warnf("cbkv: close: %v", err)
	}
	current = nil
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		disconnect()
		os.Exit(1)
	}
}
