package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lithammer/shortuuid/v4"
	chromem "github.com/philippgille/chromem-go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/parleyhq/parley/plugin/llm"
	"github.com/parleyhq/parley/plugin/lorestore"
	"github.com/parleyhq/parley/server"
	"github.com/parleyhq/parley/server/broker"
	"github.com/parleyhq/parley/server/engine"
	"github.com/parleyhq/parley/server/profile"
	"github.com/parleyhq/parley/store"
	"github.com/parleyhq/parley/store/db/mysql"
	"github.com/parleyhq/parley/store/db/postgres"
	"github.com/parleyhq/parley/store/db/sqlite"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "parley",
		Short: "Multi-character chat server with streaming generation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			prof, err := profile.GetProfile(version)
			if err != nil {
				return err
			}
			return run(cmd.Context(), prof)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("addr", "", "binding address")
	flags.Int("port", 8484, "binding port")
	flags.String("data", "", "data directory")
	flags.String("driver", "sqlite", "storage driver: sqlite, postgres or mysql")
	flags.String("dsn", "", "database connection string")
	flags.String("llm-base-url", "https://openrouter.ai/api/v1", "fallback backend base url")
	flags.String("llm-api-key", "", "fallback backend api key")
	flags.String("llm-model", "", "fallback backend model")

	// .env is optional; real environment wins either way.
	_ = godotenv.Load()
	viper.SetEnvPrefix("parley")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, prof *profile.Profile) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driver, err := openDriver(prof)
	if err != nil {
		return err
	}
	st := store.New(driver)
	defer st.Close()
	if err := st.EnsureTables(ctx); err != nil {
		return errors.Wrap(err, "ensure tables")
	}

	connProfile, err := resolveConnectionProfile(ctx, st, prof)
	if err != nil {
		return err
	}
	provider := llm.NewOpenRouterProvider(connProfile)

	b := broker.New()
	registry := engine.NewRegistry()

	opts := []engine.Option{}
	lore, err := newLoreIndex(prof, connProfile)
	if err != nil {
		slog.Warn("lore index disabled", "err", err)
	} else if lore != nil {
		opts = append(opts, engine.WithLore(lore))
	}

	eng := engine.New(st, registry, b, provider, opts...)
	srv := server.NewServer(prof, st, eng, b, lore)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("server stopped")
	return nil
}

func openDriver(prof *profile.Profile) (store.Driver, error) {
	switch prof.Driver {
	case "sqlite":
		return sqlite.NewDB(prof.DSN)
	case "postgres":
		return postgres.NewDB(prof.DSN)
	case "mysql":
		return mysql.NewDB(prof.DSN)
	default:
		return nil, errors.Errorf("unknown driver %q", prof.Driver)
	}
}

// resolveConnectionProfile returns the default stored backend profile,
// seeding one from the environment on first run.
func resolveConnectionProfile(ctx context.Context, st *store.Store, prof *profile.Profile) (*store.ConnectionProfile, error) {
	isDefault := true
	existing, err := st.GetConnectionProfile(ctx, &store.FindConnectionProfile{IsDefault: &isDefault})
	if err != nil {
		return nil, errors.Wrap(err, "load default connection profile")
	}
	if existing != nil {
		return existing, nil
	}
	if prof.LLMAPIKey == "" {
		return nil, errors.New("no default connection profile and no PARLEY_LLM_API_KEY set")
	}
	created, err := st.CreateConnectionProfile(ctx, &store.ConnectionProfile{
		UID:       shortuuid.New(),
		Name:      "default",
		BaseURL:   prof.LLMBaseURL,
		APIKey:    prof.LLMAPIKey,
		Model:     prof.LLMModel,
		IsDefault: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "seed default connection profile")
	}
	return created, nil
}

func newLoreIndex(prof *profile.Profile, conn *store.ConnectionProfile) (*lorestore.Store, error) {
	if conn.APIKey == "" {
		return nil, errors.New("no api key for embeddings")
	}
	embed := chromem.NewEmbeddingFuncOpenAICompat(conn.BaseURL, conn.APIKey, "text-embedding-3-small", nil)
	return lorestore.New(prof.Data, embed)
}
