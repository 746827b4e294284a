// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main provides the entry point for appenderatord, a standalone
// host process around the batch segment appenderator core. It wires a
// local HTTP ingestion/control surface onto the lifecycle controller and
// exposes Prometheus metrics on a second listener, the way the teacher's
// own demo binary combined an HTTP API with opt-in telemetry.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"appenderator/internal/appenderator"
	"appenderator/internal/deepstorage"
	"appenderator/pkg/segment"
)

func main() {
	baseDir := flag.String("base_persist_directory", "./appenderator-data", "Root of all on-disk state")
	maxRowsInMemory := flag.Int64("max_rows_in_memory", 75_000, "Row-count persist trigger")
	maxBytesInMemory := flag.Int64("max_bytes_in_memory", 128<<20, "Byte-count persist trigger")
	skipOverheadCheck := flag.Bool("skip_bytes_in_memory_overhead_check", false, "Disable per-sink/per-hydrant overhead estimates and the heap-limit assertion")
	intermediatePersistPeriod := flag.Duration("intermediate_persist_period", 10*time.Minute, "Wall-clock persist trigger")
	maxPendingPersists := flag.Int("max_pending_persists", 5, "Persist-executor queue capacity (backpressure)")
	dataSource := flag.String("data_source", "", "Schema dataSource every added identifier must match; empty disables the check")

	deepStorageKind := flag.String("deep_storage", "local", "Deep storage backend: local or redis")
	deepStorageAddr := flag.String("deep_storage_addr", "", "Primary deep storage endpoint: a redis host:port when -deep_storage=redis, or a filesystem root when -deep_storage=local. Defaults to localhost:6379 for redis, or <base_persist_directory>-deepstorage for local.")
	deepStorageReplicas := flag.String("deep_storage_replicas", "", "Comma-separated additional deep storage endpoints, same shape as -deep_storage_addr. When non-empty, -deep_storage_addr plus every listed endpoint form a ReplicaSet that rendezvous-hashes each segment identifier to exactly one of them (internal/deepstorage.NewReplicaSet), so a re-push of the same identifier always lands on the same backend.")

	httpAddr := flag.String("http_addr", ":8080", "HTTP control/ingestion listen address")
	metricsAddr := flag.String("metrics_addr", ":9090", "Prometheus /metrics listen address; empty disables")
	flag.Parse()

	cfg := appenderator.Config{
		BasePersistDirectory:           *baseDir,
		MaxRowsInMemory:                *maxRowsInMemory,
		MaxBytesInMemory:               *maxBytesInMemory,
		SkipBytesInMemoryOverheadCheck: *skipOverheadCheck,
		IntermediatePersistPeriod:      *intermediatePersistPeriod,
		MaxPendingPersists:             *maxPendingPersists,
	}

	pusher, err := buildPusher(*deepStorageKind, *baseDir, *deepStorageAddr, *deepStorageReplicas)
	if err != nil {
		log.Fatalf("appenderatord: deep storage: %v", err)
	}

	a, err := appenderator.New(cfg, appenderator.Schema{DataSource: *dataSource}, appenderator.Dependencies{Pusher: pusher})
	if err != nil {
		log.Fatalf("appenderatord: construct appenderator: %v", err)
	}
	if err := a.StartJob(); err != nil {
		log.Fatalf("appenderatord: startJob: %v", err)
	}

	mux := http.NewServeMux()
	registerRoutes(mux, a)
	httpServer := &http.Server{Addr: *httpAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		fmt.Printf("appenderatord control server listening on %s\n", *httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("appenderatord: http server: %v", err)
		}
	}()

	var metricsServer *http.Server
	if *metricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: *metricsAddr, Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			fmt.Printf("appenderatord metrics listening on %s\n", *metricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("appenderatord: metrics server: %v", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	fmt.Println("\nappenderatord: shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("appenderatord: http server shutdown failed: %v", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Printf("appenderatord: metrics server shutdown failed: %v", err)
		}
	}

	if err := a.Close(); err != nil {
		log.Printf("appenderatord: close failed: %v", err)
	}
	fmt.Println("appenderatord: stopped.")
}

// buildPusher constructs the Pusher wired into the appenderator. With a
// single endpoint (the common case) it returns that backend's Pusher
// directly; once -deep_storage_replicas names additional endpoints, it
// builds a deepstorage.ReplicaSet over all of them so pushes spread across
// backends via rendezvous hashing instead of all landing on one (spec
// SPEC_FULL.md §4.14/§6).
func buildPusher(kind, baseDir, addr, replicas string) (deepstorage.Pusher, error) {
	endpoints := []string{addr}
	for _, r := range strings.Split(replicas, ",") {
		if r = strings.TrimSpace(r); r != "" {
			endpoints = append(endpoints, r)
		}
	}

	if len(endpoints) == 1 {
		return newPusher(kind, baseDir, endpoints[0])
	}

	pushers := make(map[string]deepstorage.Pusher, len(endpoints))
	for _, ep := range endpoints {
		p, err := newPusher(kind, baseDir, ep)
		if err != nil {
			return nil, err
		}
		pushers[ep] = p
	}
	return deepstorage.NewReplicaSet(pushers)
}

// newPusher builds one backend Pusher for a single deep storage endpoint.
func newPusher(kind, baseDir, endpoint string) (deepstorage.Pusher, error) {
	switch kind {
	case "redis":
		addr := endpoint
		if addr == "" {
			addr = "localhost:6379"
		}
		return deepstorage.RedisPusher{Client: redis.NewClient(&redis.Options{Addr: addr})}, nil
	case "local":
		root := endpoint
		if root == "" {
			root = baseDir + "-deepstorage"
		}
		return deepstorage.LocalPusher{Root: root}, nil
	default:
		return nil, fmt.Errorf("unknown -deep_storage kind %q (want local or redis)", kind)
	}
}

// addRequest is the JSON body POST /rows expects.
type addRequest struct {
	Identifier segment.Identifier `json:"identifier"`
	Row        json.RawMessage    `json:"row"`
}

func registerRoutes(mux *http.ServeMux, a *appenderator.Appenderator) {
	mux.HandleFunc("/rows", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req addRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, err := a.Add(r.Context(), req.Identifier, req.Row, nil, true)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		writeJSON(w, result)
	})

	mux.HandleFunc("/segments", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, a.GetSegments())
	})

	mux.HandleFunc("/persistAll", func(w http.ResponseWriter, r *http.Request) {
		if err := a.PersistAll(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/push", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Identifiers   []segment.Identifier `json:"identifiers"`
			UseUniquePath bool                 `json:"useUniquePath"`
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		descriptors, err := a.Push(r.Context(), req.Identifiers, nil, req.UseUniquePath)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, descriptors)
	})

	mux.HandleFunc("/drop", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Identifier segment.Identifier `json:"identifier"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := a.Drop(req.Identifier); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/clear", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := a.Clear(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
