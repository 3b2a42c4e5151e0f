package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/gm-agent-org/mcp-guard/pkg/api"
	"github.com/gm-agent-org/mcp-guard/pkg/approval"
	"github.com/gm-agent-org/mcp-guard/pkg/audit"
	"github.com/gm-agent-org/mcp-guard/pkg/codec"
	"github.com/gm-agent-org/mcp-guard/pkg/config"
	"github.com/gm-agent-org/mcp-guard/pkg/consent"
	"github.com/gm-agent-org/mcp-guard/pkg/gateway"
	"github.com/gm-agent-org/mcp-guard/pkg/logger"
	"github.com/gm-agent-org/mcp-guard/pkg/policy"
	"github.com/gm-agent-org/mcp-guard/pkg/process"
)

// gatewayOptions are flags that override the config file for one run.
type gatewayOptions struct {
	configPath string
	policy     string
	protocol   string
	logLevel   string
	httpAddr   string
	noHTTP     bool
	auditLog   string
	cacheTTL   time.Duration
}

func (o *gatewayOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&o.policy, "policy", "p", "", "Policy file (YAML)")
	f.StringVar(&o.protocol, "protocol", "", "Wire protocol: ndjson, content-length or auto")
	f.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.StringVar(&o.httpAddr, "http-addr", "", "Decision API listen address")
	f.BoolVar(&o.noHTTP, "no-http", false, "Do not start the decision API")
	f.StringVar(&o.auditLog, "audit-log", "", "Audit log path")
	f.DurationVar(&o.cacheTTL, "cache-ttl", 0, "How long a human decision is remembered")
}

// apply copies explicitly set flags over cfg.
func (o *gatewayOptions) apply(f *pflag.FlagSet, cfg *config.Config) {
	if f.Changed("policy") {
		cfg.Policy = o.policy
	}
	if f.Changed("protocol") {
		cfg.Protocol = o.protocol
	}
	if f.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if f.Changed("http-addr") {
		cfg.HTTP.Addr = o.httpAddr
	}
	if o.noHTTP {
		cfg.HTTP.Enable = false
	}
	if f.Changed("audit-log") {
		cfg.AuditLog = o.auditLog
	}
	if f.Changed("cache-ttl") {
		cfg.CacheTTL = o.cacheTTL
	}
}

func runGateway(cmd *cobra.Command, opts *gatewayOptions, args []string) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	opts.apply(cmd.Flags(), cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := serve(ctx, cfg, log, args, stdio{
		in:     cmd.InOrStdin(),
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

type stdio struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

// serve wires the gateway around one server process and returns the server's
// exit code once the session is over.
func serve(ctx context.Context, cfg *config.Config, log *slog.Logger, argv []string, std stdio) (int, error) {
	proto, err := codec.ParseProtocol(cfg.Protocol)
	if err != nil {
		return 1, err
	}

	cache := approval.New(approval.WithTTL(cfg.CacheTTL))

	var rules *policy.RuleSet
	if cfg.Policy != "" {
		if rules, err = policy.LoadFile(cfg.Policy); err != nil {
			return 1, err
		}
	}
	engine := policy.NewEngine(rules, policy.WithCache(cache))
	coord := consent.New(cache, log)

	var sink audit.Sink = audit.NopSink{}
	if cfg.AuditLog != "" {
		sink = audit.NewFileSink(cfg.AuditLog)
	}

	gw := gateway.New(engine, coord,
		gateway.WithProtocol(proto),
		gateway.WithMaxFrameSize(cfg.MaxFrameSize),
		gateway.WithAuditSink(sink),
		gateway.WithLogger(log),
	)
	log.Info("mcp-guard starting",
		"protocol", gw.Protocol(),
		"policy", cfg.Policy,
		"rules", engine.Rules().Len(),
		"audit_log", cfg.AuditLog,
	)

	svcCtx, cancelSvc := context.WithCancel(ctx)
	defer cancelSvc()
	var services errgroup.Group

	var reloader *policy.Reloader
	if cfg.Policy != "" {
		reloader = policy.NewReloader(cfg.Policy, engine, log)
		services.Go(func() error {
			if err := reloader.Watch(svcCtx); err != nil {
				log.Warn("policy watcher stopped", "error", err)
			}
			return nil
		})
	}

	if cfg.HTTP.Enable {
		backend := api.Backend{Approvals: coord, Cache: cache, Stats: gw.Stats}
		if reloader != nil {
			backend.Reloader = reloader
		}
		api.Version = Version
		srv := api.NewServer(cfg.HTTP, backend, log)
		ln, err := net.Listen("tcp", srv.Addr())
		if err != nil {
			return 1, fmt.Errorf("decision api: %w", err)
		}
		services.Go(func() error { return srv.ServeListener(svcCtx, ln) })
	}

	services.Go(func() error {
		pruneCache(svcCtx, cache, log)
		return nil
	})

	stopServices := func() {
		cancelSvc()
		if err := services.Wait(); err != nil {
			log.Warn("background service failed", "error", err)
		}
	}

	proc, err := process.Start(ctx, log, argv[0], argv[1:],
		process.WithStderr(std.errOut),
		process.WithEnv(codec.ProtocolEnv+"="+string(gw.Protocol())),
	)
	if err != nil {
		stopServices()
		return 1, err
	}

	runErr := gw.Run(ctx, gateway.Streams{
		ClientIn:  std.in,
		ClientOut: std.out,
		ServerIn:  proc.Stdin(),
		ServerOut: proc.Stdout(),
	})
	if runErr != nil {
		log.Error("gateway stopped with error", "error", runErr)
	}

	code, waitErr := proc.Wait()
	stopServices()
	log.Info("mcp-guard finished", "code", code, "stats", gw.Stats())
	return code, waitErr
}

// pruneCache drops expired decisions once per TTL until ctx ends.
func pruneCache(ctx context.Context, cache *approval.Cache, log *slog.Logger) {
	ticker := time.NewTicker(cache.TTL())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := cache.Prune(); n > 0 {
				log.Debug("pruned expired decisions", "count", n)
			}
		}
	}
}
