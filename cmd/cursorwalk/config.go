// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package main

import (
	"os"

	flags "github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

const (
	defaultDatabase   = "cursorwalk"
	defaultCollection = "docs"
	defaultSeed       = 1000
	envFile           = ".env"
)

// config defines the configuration options for cursorwalk.
//
// Values are taken, from lowest to highest precedence, from the defaults, the TOML file named by --config, the
// environment (including a .env file in the working directory) and the command line.
type config struct {
	ConfigFile string `short:"C" long:"config" description:"Path to a TOML configuration file" toml:"-"`
	URI        string `long:"uri" env:"CURSORWALK_URI" description:"Connection string of a MongoDB deployment. An in-memory deployment is seeded when empty" toml:"uri"`
	Database   string `short:"d" long:"db" description:"Database to read from" toml:"database"`
	Collection string `short:"c" long:"collection" description:"Collection to read from" toml:"collection"`
	Command    string `long:"command" choice:"find" choice:"aggregate" choice:"listIndexes" choice:"listCollections" description:"Command producing the cursor" toml:"command"`
	Filter     string `long:"filter" description:"Extended JSON filter for find and listCollections" toml:"filter"`
	Pipeline   string `long:"pipeline" description:"Extended JSON array of aggregation stages" toml:"pipeline"`
	BatchSize  int32  `short:"b" long:"batch-size" description:"Documents requested per batch. 0 lets the server decide" toml:"batch_size"`
	Limit      int32  `long:"limit" description:"Maximum number of documents returned by find" toml:"limit"`
	CloseAfter int    `long:"close-after" description:"Close the cursor after this many documents. 0 drains it" toml:"close_after"`
	Seed       int    `long:"seed" description:"Documents inserted into the in-memory deployment" toml:"seed"`
	Promise    string `long:"promise" choice:"goroutine" choice:"inline" choice:"counting" description:"Promise library used by every cursor" toml:"promise"`
	Parallel   int    `short:"p" long:"parallel" description:"Number of cursors walked concurrently" toml:"parallel"`
	LogLevel   string `long:"log-level" env:"CURSORWALK_LOG_LEVEL" choice:"off" choice:"info" choice:"debug" description:"Driver log level" toml:"log_level"`
	Pretty     bool   `long:"pretty" description:"Indent printed documents" toml:"pretty"`
	Quiet      bool   `short:"q" long:"quiet" description:"Do not print documents" toml:"quiet"`
	Events     bool   `long:"events" description:"Print cursor monitor events" toml:"events"`
	Dump       bool   `long:"dump" description:"Dump cursor statistics when done" toml:"dump"`
}

func defaultConfig() config {
	return config{
		Database:   defaultDatabase,
		Collection: defaultCollection,
		Command:    "find",
		Seed:       defaultSeed,
		Promise:    "goroutine",
		Parallel:   1,
		LogLevel:   "off",
	}
}

// loadConfig builds the configuration from args, which excludes the program name. A nil config with a nil error
// means help was requested and printed.
func loadConfig(args []string) (*config, error) {
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "loading %s", envFile)
	}

	// Pre-parse the command line to find the config file.
	preCfg := defaultConfig()
	preParser := flags.NewParser(&preCfg, flags.HelpFlag|flags.IgnoreUnknown)
	if _, err := preParser.ParseArgs(args); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			preParser.WriteHelp(os.Stdout)
			return nil, nil
		}
		return nil, err
	}

	cfg := defaultConfig()
	if preCfg.ConfigFile != "" {
		tree, err := toml.LoadFile(preCfg.ConfigFile)
		if err != nil {
			return nil, errors.Wrapf(err, "reading config file %s", preCfg.ConfigFile)
		}
		if err := tree.Unmarshal(&cfg); err != nil {
			return nil, errors.Wrapf(err, "parsing config file %s", preCfg.ConfigFile)
		}
	}

	parser := flags.NewParser(&cfg, flags.PassDoubleDash)
	remaining, err := parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}
	if len(remaining) > 0 {
		return nil, errors.Errorf("unexpected arguments: %v", remaining)
	}

	if cfg.BatchSize < 0 || cfg.Limit < 0 || cfg.CloseAfter < 0 || cfg.Seed < 0 {
		return nil, errors.New("--batch-size, --limit, --close-after and --seed must not be negative")
	}
	if cfg.Parallel < 1 {
		return nil, errors.Errorf("--parallel must be at least 1, got %d", cfg.Parallel)
	}
	return &cfg, nil
}
