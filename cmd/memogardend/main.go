// Command memogardend is the long-running substrate daemon. HTTP
// transport and authentication are external collaborators, so this
// entrypoint exposes the verb submission contract over the simplest
// transport-agnostic surface available: one
// JSON request object per line on stdin, one JSON response object per
// line on stdout. A real deployment wraps this loop (or the equivalent
// app.App/dispatch.Dispatcher call) behind whatever transport it needs;
// that wrapping is an external collaborator by design.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/memogarden/memogarden/internal/app"
	"github.com/memogarden/memogarden/internal/config"
	"github.com/memogarden/memogarden/internal/contextengine"
	"github.com/memogarden/memogarden/internal/dispatch"
)

type wireRequest struct {
	Op        string                  `json:"op"`
	Params    map[string]any          `json:"params"`
	ActorUUID string                  `json:"actor_uuid"`
	ActorType contextengine.OwnerType `json:"actor_type"`
}

func main() {
	cfgFile := flag.String("config", "", "config file path")
	profile := flag.String("profile", "", "resource profile (embedded|standard)")
	verbose := flag.Bool("verbose", false, "debug logging")
	flag.Parse()

	zcfg := zap.NewProductionConfig()
	if *verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	log, err := zcfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load(*cfgFile, *profile)
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	a, err := app.Open(cfg, log)
	if err != nil {
		log.Fatal("open app", zap.Error(err))
	}
	defer a.Close()

	log.Info("memogardend ready", zap.String("system_status", string(a.Coord.Status())))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		a.Close()
		os.Exit(0)
	}()

	serve(a.Dispatcher, log)
}

// serve runs the verb submission loop: one JSON request per input line
// (op/params plus actor identity), one JSON response envelope per output
// line (ok/actor/timestamp and exactly one of result or error).
func serve(d *dispatch.Dispatcher, log *zap.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(os.Stdout)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req wireRequest
		if err := json.Unmarshal(line, &req); err != nil {
			enc.Encode(map[string]any{"ok": false, "error": map[string]any{
				"code": "validation_error", "message": err.Error(),
			}})
			continue
		}
		actor := dispatch.Actor{UUID: req.ActorUUID, Type: req.ActorType}
		resp := d.Submit(context.Background(), actor, dispatch.Request{Op: req.Op, Params: req.Params})
		if err := enc.Encode(resp); err != nil {
			log.Error("encode response", zap.Error(err))
		}
	}
	if err := scanner.Err(); err != nil {
		log.Error("stdin scan", zap.Error(err))
	}
}
