package app

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/cori-do/cori/internal/approval"
	"github.com/cori-do/cori/internal/audit"
	"github.com/cori-do/cori/internal/dynamictool"
	"github.com/cori-do/cori/internal/mcp"
	"github.com/cori-do/cori/internal/metrics"
	"github.com/cori-do/cori/internal/permission"
	"github.com/cori-do/cori/internal/schema"
	"github.com/cori-do/cori/internal/sqlgen"
	"github.com/cori-do/cori/internal/token"
	"github.com/prometheus/client_golang/prometheus"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parentCtx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fail("loading config: %w", err)
	}
	logger := newLogger(cfg)

	ctx, cancel := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sch, err := schema.Load(cfg.Database.SchemaPath)
	if err != nil {
		return fail("loading schema: %w", err)
	}
	role, err := permission.LoadRole(cfg.Database.RolePath)
	if err != nil {
		return fail("loading role: %w", err)
	}
	rules, err := permission.LoadRules(cfg.Database.RulesPath)
	if err != nil {
		return fail("loading rules: %w", err)
	}
	model, err := permission.NewModel(role, rules, sch)
	if err != nil {
		return fail("building permission model: %w", err)
	}

	rootPub, err := token.ReadPublicKey(cfg.Token.RootPublicKeyPath)
	if err != nil {
		return fail("loading root public key: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
	if err != nil {
		return fail("parsing database dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fail("connecting to database: %w", err)
	}
	defer pool.Close()

	emitter := sqlgen.New(model, sch, sqlgen.NewPoolExecutor(pool))

	store, err := approval.Open(cfg.Approval.LogDir)
	if err != nil {
		return fail("opening approval store: %w", err)
	}

	auditWriter, err := audit.NewFileWriter(cfg.Approval.LogDir + "/audit.log")
	if err != nil {
		return fail("opening audit log: %w", err)
	}
	auditSink := audit.NewQueueSink(auditWriter, 1024, logger)
	defer auditSink.Close()

	reg := prometheus.NewRegistry()
	metricsReg := metrics.New(reg)

	registry := mcp.NewRegistry()
	deps := &dynamictool.Deps{
		RoleName:    role.Name,
		Model:       model,
		Schema:      sch,
		Emitter:     emitter,
		Approvals:   store,
		Audit:       auditSink,
		ApprovalTTL: cfg.Approval.DefaultTTL,
		Logger:      logger,
		Metrics:     metricsReg,
	}
	dynamictool.Register(registry, role, deps)

	server := mcp.NewServer(registry, mcp.ServerInfo{Name: cfg.Server.Name, Version: cfg.Server.Version}, logger)

	if cfg.Transport.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler(reg))
			srv := &http.Server{Addr: cfg.Transport.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			logger.Info("metrics server listening", "addr", cfg.Transport.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	if cfg.Transport.Mode == "http" {
		httpServer := mcp.NewHTTPServer(server, cfg.Transport.CORSOrigins, rootPub, logger)
		addr := cfg.Transport.Host + ":" + cfg.Transport.Port
		srv := &http.Server{Addr: addr, Handler: httpServer.Handler(), ReadHeaderTimeout: 5 * time.Second}
		logger.Info("cori listening", "addr", addr, "mode", "http")
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fail("http server failed: %w", err)
		}
		return nil
	}

	return server.Run(ctx)
}
