// Package controlapi is the built-in control API service: the HTTP
// surface operators and botmeshctl use to inspect the running platform
// (status, discovered plugins, the startup plan) and to trigger plan
// invalidation and plugin reloads.
//
// The plugin implements the Runner contract: Run blocks serving HTTP
// until its task context is cancelled, then shuts the listener down
// gracefully. Mutating routes require a bearer token verified by the
// tokens utility unless authentication is disabled in configuration.
package controlapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/botmesh/botmesh/internal/logger"
	"github.com/botmesh/botmesh/internal/plugins/tokens"
	"github.com/botmesh/botmesh/pkg/plugin"
	"github.com/botmesh/botmesh/pkg/plugin/planner"
	"github.com/botmesh/botmesh/pkg/runtime"
)

// Name is the plugin name declared in descriptors.
const Name = "controlapi"

// DefaultPort is the control API port when no setting overrides it.
const DefaultPort = 8420

// shutdownGrace bounds the graceful drain of in-flight requests once
// the task context is cancelled.
const shutdownGrace = 5 * time.Second

// Controller is the slice of the lifecycle controller the API serves.
// *runtime.Runtime satisfies it; tests substitute a fake.
type Controller interface {
	State() runtime.State
	Uptime() time.Duration
	TaskCount() int
	CachedCounts() (utilities, services int)
	Plan() *planner.Plan
	InvalidatePlan()
	Reload() error
	Descriptors() map[string]*plugin.Descriptor
	Descriptor(name string) (*plugin.Descriptor, bool)
}

// Config holds the control API transport settings.
type Config struct {
	// Port is the TCP port the HTTP server listens on.
	Port int

	// ReadTimeout, WriteTimeout and IdleTimeout are passed straight to
	// the underlying http.Server.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// AuthDisabled turns off bearer authentication. Intended for
	// development; mutating routes become open to anyone who can reach
	// the port.
	AuthDisabled bool

	// Metrics exposes the Prometheus registry on GET /metrics.
	Metrics bool
}

// Service is the control API plugin instance.
type Service struct {
	ctrl     Controller
	verifier *tokens.Service
	config   Config
	log      *slog.Logger
}

var _ plugin.Runner = (*Service)(nil)

// NewFactory returns the plugin factory bound to the lifecycle
// controller. The controller cannot come through the capability map:
// it owns the kernel that calls this factory, so the host command
// closes over it at registration time instead.
func NewFactory(ctrl Controller) plugin.Factory {
	return func(_ context.Context, deps *plugin.Dependencies) (any, error) {
		cfg := Config{
			Port:         deps.IntSetting("port", DefaultPort),
			ReadTimeout:  deps.DurationSetting("read_timeout", 10*time.Second),
			WriteTimeout: deps.DurationSetting("write_timeout", 10*time.Second),
			IdleTimeout:  deps.DurationSetting("idle_timeout", 60*time.Second),
			AuthDisabled: deps.BoolSetting("auth_disabled", false),
			Metrics:      deps.BoolSetting("metrics", false),
		}

		var verifier *tokens.Service
		if v, ok := deps.Get(tokens.Name); ok {
			verifier, ok = v.(*tokens.Service)
			if !ok {
				return nil, fmt.Errorf("controlapi: %q capability has unexpected type %T", tokens.Name, v)
			}
		}

		return NewService(ctrl, verifier, cfg, deps.Logger())
	}
}

// NewService builds the control API service. A nil verifier is only
// acceptable with authentication disabled: without either there is no
// way to guard the mutating routes.
func NewService(ctrl Controller, verifier *tokens.Service, config Config, log *slog.Logger) (*Service, error) {
	if ctrl == nil {
		return nil, fmt.Errorf("controlapi: controller must not be nil")
	}
	if verifier == nil && !config.AuthDisabled {
		return nil, fmt.Errorf("controlapi: %q utility unavailable and authentication is not disabled", tokens.Name)
	}
	if config.Port <= 0 {
		config.Port = DefaultPort
	}
	if log == nil {
		log = logger.Named(Name)
	}

	return &Service{
		ctrl:     ctrl,
		verifier: verifier,
		config:   config,
		log:      log,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight
// requests for up to shutdownGrace before returning. A listen failure
// is returned immediately.
func (s *Service) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Control API listening",
			"port", s.config.Port,
			"auth_disabled", s.config.AuthDisabled,
			"metrics", s.config.Metrics,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("Control API shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.log.Error("Control API shutdown error", "error", err)
			return err
		}
		s.log.Info("Control API stopped")
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("control API server failed: %w", err)
	}
}

// Port returns the configured listen port.
func (s *Service) Port() int {
	return s.config.Port
}
