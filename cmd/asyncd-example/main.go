/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Command asyncd-example is a minimal embedding of the asyncd/httpd
// packages: a cobra CLI, a viper-loaded config, and a three-hook chain
// (parser, then two business hooks filtered by method) that answers GET
// with a fixed body and echoes a POST body back to the caller.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wolkykim/libasyncd/asyncd"
	"github.com/wolkykim/libasyncd/httpd"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("asyncd")
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "asyncd-example",
		Short: "Run a small asyncd HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v)
		},
	}

	flags := cmd.Flags()
	flags.String("config", "", "path to a YAML/TOML/JSON config file")
	flags.String("addr", "0.0.0.0", "bind address")
	flags.String("port", "8888", "bind port")
	flags.String("timeout", "0", "idle timeout in seconds (0 disables it)")
	flags.Bool("pipelining", true, "keep a connection open across pipelined requests")
	flags.String("log-level", "info", "logrus level: trace, debug, info, warn, error")

	_ = v.BindPFlag("config", flags.Lookup("config"))
	_ = v.BindPFlag("addr", flags.Lookup("addr"))
	_ = v.BindPFlag("port", flags.Lookup("port"))
	_ = v.BindPFlag("timeout", flags.Lookup("timeout"))
	_ = v.BindPFlag("pipelining", flags.Lookup("pipelining"))
	_ = v.BindPFlag("log-level", flags.Lookup("log-level"))

	return cmd
}

func run(v *viper.Viper) error {
	if cfg := v.GetString("config"); cfg != "" {
		v.SetConfigFile(cfg)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", cfg, err)
		}
	}

	logger := logrus.StandardLogger()
	level, err := logrus.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("parsing log-level: %w", err)
	}
	logger.SetLevel(level)

	s := asyncd.New()
	s.SetLogger(logger)
	s.SetOption(asyncd.OptAddr, v.GetString("addr"))
	s.SetOption(asyncd.OptPort, v.GetString("port"))
	s.SetOption(asyncd.OptTimeout, v.GetString("timeout"))
	if v.GetBool("pipelining") {
		s.SetOption(asyncd.OptRequestPipelining, "1")
	} else {
		s.SetOption(asyncd.OptRequestPipelining, "0")
	}
	s.SetOption(asyncd.OptThread, "1")

	s.RegisterHook("parser", httpd.NewParserHook())
	s.RegisterHookOnMethod("hello", httpd.GET, helloHook())
	s.RegisterHookOnMethod("echo", httpd.POST, echoHook())

	if err := s.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	logger.WithField("addr", s.Addr()).Info("asyncd-example listening")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	return s.Stop()
}

// helloHook answers every GET with a fixed body, honoring the request's
// own keep-alive preference the way every business hook in this chain
// must: the engine's pipelining reset is driven by server.request_pipelining
// alone, so a hook that ignores Connection: close would keep a connection
// the client asked to end open for another pipelined request.
func helloHook() asyncd.HookFunc {
	return func(conn *asyncd.Conn, event asyncd.Event) asyncd.Status {
		if !event.Has(asyncd.EventRead) {
			return asyncd.StatusOK
		}
		req := httpd.Current(conn)
		if req == nil || !req.Done() {
			return asyncd.StatusOK
		}
		keepAlive := req.IsKeepAlive()
		resp := httpd.NewResponse(conn)
		if err := resp.SendData(req.Proto, keepAlive, []byte("hello, world")); err != nil {
			return asyncd.StatusClose
		}
		conn.Flush()
		if !keepAlive {
			return asyncd.StatusClose
		}
		return asyncd.StatusDone
	}
}

// echoHook writes the request body back verbatim, exercising the chunked
// and Content-Length body paths alike (Request.Body is already fully
// reassembled by the time Done() is true, regardless of which framing the
// client used).
func echoHook() asyncd.HookFunc {
	return func(conn *asyncd.Conn, event asyncd.Event) asyncd.Status {
		if !event.Has(asyncd.EventRead) {
			return asyncd.StatusOK
		}
		req := httpd.Current(conn)
		if req == nil || !req.Done() {
			return asyncd.StatusOK
		}
		keepAlive := req.IsKeepAlive()
		resp := httpd.NewResponse(conn)
		if err := resp.SendData(req.Proto, keepAlive, req.Body); err != nil {
			return asyncd.StatusClose
		}
		conn.Flush()
		if !keepAlive {
			return asyncd.StatusClose
		}
		return asyncd.StatusDone
	}
}
