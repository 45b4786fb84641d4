// Package main is a thin operational entrypoint for sql-plus-plus: it
// loads a topology config, opens a Database, exposes its metrics, and
// runs a periodic smoke-check connection acquire until signaled to stop.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	sqlpp "github.com/1261385937/sql-plus-plus"
	"github.com/1261385937/sql-plus-plus/internal/config"
	"github.com/1261385937/sql-plus-plus/model"
)

var (
	configPath  = flag.String("config", "configs/sqlpp.yaml", "path to topology configuration file")
	metricsAddr = flag.String("metrics-addr", ":9090", "address to serve /metrics on")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[main] loading configuration")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[main] failed to load configuration: %v", err)
	}
	log.Printf("[main] driver=%s topology=%s nodes=%d", cfg.Driver, cfg.Topology, len(cfg.Nodes))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sqlpp.NewFromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("[main] failed to open database: %v", err)
	}
	defer func() {
		log.Println("[main] closing database")
		if err := db.Close(); err != nil {
			log.Printf("[main] database close error: %v", err)
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:         *metricsAddr,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[main] metrics server listening on %s/metrics", *metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[main] metrics server error: %v", err)
		}
	}()

	stopHealthChecks := db.StartHealthChecks(cfg.HealthCheckInterval)
	defer stopHealthChecks()

	role := model.RoleGeneral
	if db.Topology() == model.TopologyCluster {
		role = model.RoleMaster
	}
	go runSmokeChecks(ctx, db, role)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("[main] received signal %v, shutting down", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] metrics server shutdown error: %v", err)
	}
}

// runSmokeChecks periodically borrows and returns a connection so the pool's
// idle queue and metrics reflect real traffic even with no application
// workload attached yet.
func runSmokeChecks(ctx context.Context, db *sqlpp.Database, role model.Role) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g, err := db.Conn(ctx, role)
			if err != nil {
				log.Printf("[main] smoke check acquire failed: %v", err)
				continue
			}
			g.Release()
		}
	}
}
