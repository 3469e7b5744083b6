// Package server orchestrates all components: discovery sockets, registry, optional COMMS and DB, HTTP health.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/cluster-supervisor/internal/config"
	"github.com/morezero/cluster-supervisor/pkg/bootstrap"
	"github.com/morezero/cluster-supervisor/pkg/commsutil"
	"github.com/morezero/cluster-supervisor/pkg/component"
	"github.com/morezero/cluster-supervisor/pkg/db"
	"github.com/morezero/cluster-supervisor/pkg/dispatcher"
	"github.com/morezero/cluster-supervisor/pkg/events"
	"github.com/morezero/cluster-supervisor/pkg/metric"
	"github.com/morezero/cluster-supervisor/pkg/registry"
	"github.com/morezero/cluster-supervisor/pkg/semver"
	"github.com/morezero/cluster-supervisor/pkg/supervisor"
	"github.com/morezero/cluster-supervisor/pkg/transport"
)

const logPrefix = "server:server"

// Server is the cluster-supervisor orchestrator.
type Server struct {
	cfg         *config.Config
	nc          *comms.Conn
	pool        *pgxpool.Pool
	httpServer  *http.Server
	reg         dispatcher.Source
	metrics     *metric.Registry
	ready       <-chan struct{}
	clusterName string
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return Serve(ctx, cfg)
}

// SetupLogging installs the default text logger at the given level.
func SetupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// Serve runs the Supervisor until ctx ends.
func Serve(ctx context.Context, cfg *config.Config) error {
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - Starting cluster-supervisor", logPrefix))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Step 1: Load cluster file
	clusterCfg, err := bootstrap.LoadClusterConfig(cfg.ComponentsFile)
	if err != nil {
		return fmt.Errorf("%s - failed to load cluster config: %w", logPrefix, err)
	}
	if cfg.MinComponentVersion != "" {
		clusterCfg.Versions.Rules = cfg.MinComponentVersion
	}
	resolved, err := bootstrap.ResolveClusterConfig(clusterCfg)
	if err != nil {
		return fmt.Errorf("%s - invalid cluster config: %w", logPrefix, err)
	}
	gate, err := semver.NewGate(resolved.VersionRules())
	if err != nil {
		return fmt.Errorf("%s - invalid version rules: %w", logPrefix, err)
	}

	s := &Server{cfg: cfg, metrics: metric.NewRegistry(), clusterName: resolved.Name()}
	defer s.close()

	// Step 2: Optional COMMS connection
	nc, err := commsutil.ConnectOptional(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}
	s.nc = nc

	publishers := []events.EventPublisher{}
	if nc != nil {
		subject := cfg.ChangeEventSubject
		if subject == "" {
			subject = resolved.GlobalChangeSubject()
		}
		publishers = append(publishers, events.NewCommsPublisher(nc, &events.CommsPublisherOpts{GlobalChangeSubject: subject}))
	}

	// Step 3: Optional component journal
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		s.pool = pool
		if cfg.RunMigrations {
			migrations, err := db.LoadMigrations(cfg.MigrationPath)
			if err != nil {
				return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
			}
			if err := db.RunMigrations(ctx, pool, migrations); err != nil {
				return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
			}
		}
		publishers = append(publishers, db.NewJournal(pool, resolved.Name()))
	}

	// Step 4: Registry and Supervisor
	reg := registry.NewRegistry(registry.NewRegistryParams{
		Classes:   resolved.Classes(),
		Publisher: events.NewMultiPublisher(publishers...),
		Gate:      gate,
		Metrics:   s.metrics.Metrics,
	})
	defer reg.Close()
	s.reg = reg

	sup := supervisor.New(supervisor.NewSupervisorParams{
		Registry: reg,
		Config: supervisor.Config{
			UDPAddr:       cfg.UDPAddr,
			TCPAddr:       cfg.TCPAddr,
			InternalAddr:  cfg.InternalAddr,
			BroadcastHost: cfg.BroadcastAddr,
			ReplyTimeout:  cfg.RequestTimeout,
			Limits:        transport.Limits{MaxBufferedBytes: cfg.MaxBufferedBytes},
		},
		Self:    resolved.Self(),
		Metrics: s.metrics.Metrics,
	})
	s.ready = sup.Ready()

	// Step 5: Query subject
	if nc != nil {
		subject := cfg.QuerySubject
		if subject == "" {
			subject = commsutil.BuildQuerySubject(resolved.Name())
		}
		sub, err := nc.Subscribe(subject, s.queryHandler(ctx, dispatcher.NewDispatcher(reg)))
		if err != nil {
			return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, subject, err)
		}
		defer sub.Unsubscribe()
		slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, subject))
	}

	// Step 6: HTTP health server
	httpAddr := cfg.HTTPListenAddr()
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	go func() {
		select {
		case <-sup.Ready():
			slog.Info(fmt.Sprintf("%s - Cluster-supervisor is ready", logPrefix))
		case <-ctx.Done():
		}
	}()

	// Blocks until ctx ends or a listener fails.
	err = sup.Start(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error(fmt.Sprintf("%s - supervisor stopped: %v", logPrefix, err))
	} else {
		err = nil
		slog.Info(fmt.Sprintf("%s - Shutting down", logPrefix))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HealthCheckTimeout)
	defer shutdownCancel()
	_ = s.httpServer.Shutdown(shutdownCtx)
	return err
}

// close releases COMMS and DB. Safe with either unset.
func (s *Server) close() {
	if s.nc != nil {
		_ = s.nc.Drain()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/health", s.handleHealth())
	mux.HandleFunc("/ready", s.handleReady())
	mux.HandleFunc("/components", s.handleComponents())
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

// queryHandler answers JSON queries on the COMMS query subject.
func (s *Server) queryHandler(ctx context.Context, disp *dispatcher.Dispatcher) comms.MsgHandler {
	requestTimeout := s.cfg.RequestTimeout
	return func(msg *comms.Msg) {
		var req dispatcher.QueryRequest
		if err := commsutil.DecodePayload(msg.Data, &req); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to decode request: %v", logPrefix, err))
			_ = commsutil.Respond(msg, &dispatcher.QueryResponse{
				Error: &dispatcher.ErrorDetail{
					Code:    "INVALID_REQUEST",
					Message: "Failed to decode request",
				},
			})
			return
		}

		// Per-request context with timeout; a shorter caller timeout wins
		timeout := requestTimeout
		if req.Ctx != nil && req.Ctx.TimeoutMs > 0 {
			if d := time.Duration(req.Ctx.TimeoutMs) * time.Millisecond; d < timeout {
				timeout = d
			}
		}
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := commsutil.Respond(msg, disp.Dispatch(reqCtx, &req)); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to respond: %v", logPrefix, err))
		}
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		h := dispatcher.HealthResult{Status: "healthy"}
		n, err := s.reg.Len(ctx)
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			h.Status = "unhealthy"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		h.Components = n
		json.NewEncoder(w).Encode(h)
	}
}

func (s *Server) handleReady() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		select {
		case <-s.ready:
			json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "starting"})
		}
	}
}

// handleComponents lists the registry as JSON, optionally filtered by ?type=.
func (s *Server) handleComponents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		var (
			infos []component.Info
			err   error
		)
		if name := r.URL.Query().Get("type"); name != "" {
			t, perr := component.ParseType(name)
			if perr != nil {
				http.Error(w, perr.Error(), http.StatusBadRequest)
				return
			}
			infos, err = s.reg.GetInfo(ctx, t)
		} else {
			infos, err = s.reg.All(ctx)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		views := dispatcher.ViewsOf(infos)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(dispatcher.ListResult{Components: views, Count: len(views)})
	}
}

// homePageTemplate is the HTML for the supervisor home page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Cluster Supervisor</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    h1, h2 { color: #0066cc; }
    table { border-collapse: collapse; width: 100%; max-width: 1100px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .stat { font-weight: bold; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; margin-top: 1rem; }
    .error { color: #cc0000; }
  </style>
</head>
<body>
  <h1>Cluster Supervisor</h1>
  <p class="meta">Cluster {{.Cluster}}</p>
  {{if .Error}}
  <p class="error">Could not load components: {{.Error}}</p>
  {{else}}
  <p>Registered components: <span class="stat">{{len .Components}}</span></p>
  <table>
    <thead>
      <tr><th>Type</th><th>ID</th><th>Internal</th><th>External</th><th>State</th><th>Version</th></tr>
    </thead>
    <tbody>
      {{range .Components}}
      <tr>
        <td>{{.Type}}</td>
        <td>{{.ID}}</td>
        <td>{{.InternalAddr}}</td>
        <td>{{.ExternalAddr}}</td>
        <td>{{.State}}</td>
        <td>{{.Version}}</td>
      </tr>
      {{end}}
    </tbody>
  </table>
  {{end}}
</body>
</html>
`

// homeData is the data passed to the home page template.
type homeData struct {
	Cluster    string
	Components []dispatcher.ComponentView
	Error      string
}

// handleHome returns an HTTP handler for the supervisor home page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		data := homeData{Cluster: s.clusterName}
		infos, err := s.reg.All(ctx)
		if err != nil {
			data.Error = err.Error()
		} else {
			data.Components = dispatcher.ViewsOf(infos)
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
