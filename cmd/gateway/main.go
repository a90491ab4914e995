// Command gateway runs the inference gateway.
//
// Usage:
//
//	gateway serve --config gateway.yaml
//	gateway validate --config gateway.yaml
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/lightspan-ai/gateway/pkg/auth"
	"github.com/lightspan-ai/gateway/pkg/authz"
	"github.com/lightspan-ai/gateway/pkg/cache"
	"github.com/lightspan-ai/gateway/pkg/config"
	"github.com/lightspan-ai/gateway/pkg/conversations"
	"github.com/lightspan-ai/gateway/pkg/feedback"
	"github.com/lightspan-ai/gateway/pkg/llamastack"
	"github.com/lightspan-ai/gateway/pkg/logger"
	"github.com/lightspan-ai/gateway/pkg/query"
	"github.com/lightspan-ai/gateway/pkg/quota"
	"github.com/lightspan-ai/gateway/pkg/server"
	"github.com/lightspan-ai/gateway/pkg/tools"
	"github.com/lightspan-ai/gateway/pkg/transcript"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the gateway server."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config   string `short:"c" help:"Path to config file." type:"path" default:"gateway.yaml"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:""`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("gateway version %s\n", buildVersion())
	return nil
}

// ValidateCmd loads and validates the configuration, then exits.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if _, err := config.Load(cli.Config); err != nil {
		return err
	}
	fmt.Printf("%s is valid\n", cli.Config)
	return nil
}

// ServeCmd starts the gateway server.
type ServeCmd struct{}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if cli.LogLevel != "" {
		level = cli.LogLevel
	}
	logger.Init(logger.ParseLevel(level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := llamastack.NewHTTPClient(llamastack.Options{
		BaseURL: cfg.Upstream.URL,
		APIKey:  cfg.Upstream.APIKey,
		Timeout: cfg.Upstream.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create llama-stack client: %w", err)
	}

	convCache, err := cache.NewCacheFromConfig(&cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to create conversation cache: %w", err)
	}
	defer convCache.Close()

	db, dialect, err := openDatabase(&cfg.Database)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	convStore, err := conversations.NewStoreFromDB(db, dialect)
	if err != nil {
		return fmt.Errorf("failed to create conversation store: %w", err)
	}

	limiters, err := quota.NewLimitersFromConfig(&cfg.Quota, db, dialect)
	if err != nil {
		return fmt.Errorf("failed to create quota limiters: %w", err)
	}

	var transcripts *transcript.Writer
	if cfg.Transcripts.Enabled {
		transcripts = transcript.NewWriter(cfg.Transcripts.Dir)
	}
	feedbackStore := feedback.NewStore(cfg.Feedback.Dir, cfg.Feedback.Enabled)

	authModule, err := auth.NewModuleFromConfig(&cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to create auth module: %w", err)
	}
	roles, access, err := authz.NewResolversFromConfig(&cfg.Authz)
	if err != nil {
		return fmt.Errorf("failed to create authorization resolvers: %w", err)
	}

	handler := query.NewHandler(query.Options{
		Client:        client,
		Cache:         convCache,
		Conversations: convStore,
		Limiters:      limiters,
		Composer:      tools.NewComposer(cfg.MCPServers),
		Transcripts:   transcripts,
		Inference:     cfg.Inference,
		SafetyEnabled: cfg.Safety.Enabled,
		VectorDBs:     cfg.VectorDBs,
	})

	srv := server.New(server.Options{
		Config:        cfg,
		Client:        client,
		Query:         handler,
		Cache:         convCache,
		Conversations: convStore,
		Feedback:      feedbackStore,
		AuthModule:    authModule,
		Roles:         roles,
		Access:        access,
		Version:       buildVersion(),
	})

	slog.Info("Starting gateway", "name", cfg.Name, "upstream", cfg.Upstream.URL)
	return srv.Run(ctx)
}

// openDatabase opens the relational store backing the conversations
// side-table and SQL quota limiters. Non-SQL types (the default follows the
// cache type, which may be noop or memory) mean in-memory stores.
func openDatabase(cfg *config.DatabaseConfig) (*sql.DB, string, error) {
	switch cfg.Type {
	case "", config.CacheTypeNoop, config.CacheTypeMemory:
		return nil, "", nil
	case config.CacheTypeSQLite, config.CacheTypePostgres:
		db, dialect, err := cache.OpenDatabase(cfg.Type, cfg.SQLite, cfg.Postgres)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open database: %w", err)
		}
		return db, dialect, nil
	default:
		return nil, "", fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return "dev"
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("gateway"),
		kong.Description("Stateful gateway in front of a llama-stack deployment."),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
