package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/admitly/admissions/internal/config"
	"github.com/admitly/admissions/internal/frappe"
	"github.com/admitly/admissions/internal/metadata"
	"github.com/admitly/admissions/internal/server"
	"github.com/admitly/admissions/internal/telemetry"
	"github.com/admitly/admissions/pkg/form"
	"github.com/admitly/admissions/pkg/leads"
	"github.com/admitly/admissions/pkg/middleware"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		port       int
		host       string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Run the forms API, the form sessions and the CRM proxy.

Configuration is read from admissions.json (or --config) and then
from ADMISSIONS_* environment variables.

Examples:
  admissions serve
  admissions serve --port=9000
  ADMISSIONS_CRM_BASE_URL=https://crm.example.edu.vn admissions serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file (default ./admissions.json if present)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Host to bind to")

	return cmd
}

// loadConfig reads path, or admissions.json in the working directory when
// path is empty and the file exists.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if _, err := os.Stat(config.ConfigFileName); err == nil {
			path = config.ConfigFileName
		}
	}
	return config.Load(path)
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	var h slog.Handler
	if cfg.Log.Format == "text" {
		h = slog.NewTextHandler(os.Stderr, opts)
	} else {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(h)
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		Endpoint:    cfg.Tracing.Endpoint,
		Disabled:    cfg.Tracing.Disabled,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := middleware.NewMetrics(middleware.WithRegistry(reg))

	forms, err := loadForms(cfg.Forms.Dir)
	if err != nil {
		return err
	}

	var crm *frappe.Client
	if cfg.CRM.BaseURL != "" {
		crm, err = frappe.New(cfg.CRM.BaseURL,
			frappe.WithCredentials(cfg.CRM.APIKey, cfg.CRM.APISecret),
			frappe.WithTimeout(cfg.CRMTimeout()),
			frappe.WithMethods(cfg.CRM.MetadataMethod, cfg.CRM.LeadsMethod),
			frappe.WithLogger(logger.With("component", "frappe")),
		)
		if err != nil {
			return err
		}
	}

	loader, err := newLoader(ctx, cfg, crm, metrics, logger)
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithLogger(logger.With("component", "server")),
		server.WithMetrics(metrics, reg),
		server.WithLeadsLimits(leads.Limits{
			DefaultPageSize: cfg.Leads.DefaultPageSize,
			MaxPageSize:     cfg.Leads.MaxPageSize,
		}),
		server.WithAllowedOrigins(cfg.Server.AllowedOrigins...),
	}
	if crm != nil {
		opts = append(opts, server.WithCRM(crm))
	} else {
		logger.Warn("no CRM configured; submissions and the leads listing are disabled")
	}

	srv := server.New(forms, loader, opts...)
	logger.Info("starting",
		"version", version,
		"forms", forms.Names(),
		"metadata", cfg.Metadata.Source,
		"fallback", cfg.Metadata.Fallback,
	)
	return srv.Run(ctx, cfg.Address(), cfg.ShutdownTimeout())
}

func loadForms(dir string) (*form.Registry, error) {
	forms, err := form.Builtin()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return forms, nil
	}
	extra, err := form.LoadFS(os.DirFS(dir), "*.yaml")
	if err != nil {
		return nil, fmt.Errorf("forms dir %s: %w", dir, err)
	}
	return forms.With(extra), nil
}

func newLoader(ctx context.Context, cfg *config.Config, crm *frappe.Client, m *middleware.Metrics, logger *slog.Logger) (*metadata.Loader, error) {
	source := func(name string) (metadata.Source, error) {
		switch name {
		case config.SourceCRM:
			if crm == nil {
				return nil, fmt.Errorf("metadata source %q needs crm.baseURL", name)
			}
			return metadata.CRM(crm), nil
		case config.SourceS3:
			return metadata.DialS3(ctx, metadata.S3Options{
				Bucket:   cfg.Metadata.S3.Bucket,
				Key:      cfg.Metadata.S3.Key,
				Region:   cfg.Metadata.S3.Region,
				Endpoint: cfg.Metadata.S3.Endpoint,
			})
		default:
			return metadata.Embedded(), nil
		}
	}

	primary, err := source(cfg.Metadata.Source)
	if err != nil {
		return nil, err
	}
	fallback, err := source(cfg.Metadata.Fallback)
	if err != nil {
		return nil, err
	}
	return metadata.NewLoader(primary, fallback,
		metadata.WithTimeout(cfg.CRMTimeout()),
		metadata.WithLogger(logger.With("component", "metadata")),
		metadata.WithFallbackCounter(m.MetadataFallbacks),
	), nil
}
