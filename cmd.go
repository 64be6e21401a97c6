package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"hitduel/client"
	"hitduel/config"
	"hitduel/game"
	"hitduel/server"
)

const shutdownWait = 5 * time.Second

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hitduel",
		Short:         "Two-player timing duel with host-authoritative identity sync.",
		Args:          cobra.NoArgs,
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.AddCommand(newServeCmd(), newJoinCmd())
	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("hitduel v{{.Version}}\n")
	return cmd
}

func normalizeFlags(fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
}

type serveFlags struct {
	configPath string
	addr       string
	logFile    string
	logLevel   string
	tickRate   int
}

func newServeCmd() *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session host (websocket, admin and metrics endpoints).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load(cmd.Context(), cmd.Flags())
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	f.bind(cmd.Flags())
	return cmd
}

func (f *serveFlags) bind(fs *pflag.FlagSet) {
	normalizeFlags(fs)
	fs.StringVarP(&f.configPath, "config", "c", "", "path to YAML config file (env: "+config.EnvConfig+")")
	fs.StringVarP(&f.addr, "addr", "a", ":8080", "listen address (env: HITDUEL_ADDR)")
	fs.StringVar(&f.logFile, "log-file", "", "rotate logs into this file instead of stderr (env: HITDUEL_LOG_FILE)")
	fs.StringVar(&f.logLevel, "log-level", "info", "debug, info, warn or error (env: HITDUEL_LOG_LEVEL)")
	fs.IntVar(&f.tickRate, "tick-rate", 20, "simulation ticks per second (env: HITDUEL_TICK_RATE)")
}

// load 读取文件与环境变量，叠加显式参数后再整体校验
func (f *serveFlags) load(ctx context.Context, fs *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(ctx, f.configPath)
	if err != nil {
		return nil, err
	}
	f.apply(fs, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// apply 只覆盖显式设置过的参数
func (f *serveFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("addr") {
		cfg.Addr = f.addr
	}
	if fs.Changed("log-file") {
		cfg.LogFile = f.logFile
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if fs.Changed("tick-rate") {
		cfg.TickRate = f.tickRate
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log, err := server.NewLogger(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer server.SyncLogger(log)

	settings, err := server.SettingsFromConfig(cfg)
	if err != nil {
		return err
	}
	metrics := server.NewMetrics()
	rm := server.NewManager(settings, metrics, log)
	defer rm.Close()
	// 先预创建一个默认房间，便于快速试跑
	if _, err := rm.GetOrCreateRoom(server.DefaultRoomID); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.NewHandler(rm, metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Infof("HitDuel listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type joinFlags struct {
	url      string
	room     string
	name     string
	user     string
	password string
	autoplay bool
	logLevel string
}

func newJoinCmd() *cobra.Command {
	f := &joinFlags{}
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a room as a participant.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return join(cmd.Context(), f)
		},
	}
	fs := cmd.Flags()
	normalizeFlags(fs)
	fs.StringVarP(&f.url, "url", "u", "ws://localhost:8080/ws", "websocket endpoint of the host")
	fs.StringVarP(&f.room, "room", "r", server.DefaultRoomID, "room to join")
	fs.StringVarP(&f.name, "name", "n", "", "display name to claim (defaults to the logged-in user)")
	fs.StringVar(&f.user, "user", "", "in-memory account for this process only; its name becomes the default display name")
	fs.StringVar(&f.password, "password", "", "password for the --user account (must be non-empty; not checked against any stored account)")
	fs.BoolVar(&f.autoplay, "autoplay", false, "hit owned targets at the reference moment")
	fs.StringVar(&f.logLevel, "log-level", "info", "debug, info, warn or error")
	return cmd
}

// localAccount 进程内账号：只在本次运行中存在，登录后的用户名作为默认候选名
func localAccount(user, password string) (*game.AccountStore, error) {
	accounts := game.NewAccountStore()
	if err := accounts.Register(user, password); err != nil {
		return nil, err
	}
	if err := accounts.Login(user, password); err != nil {
		return nil, err
	}
	return accounts, nil
}

func join(ctx context.Context, f *joinFlags) error {
	log, err := server.NewLogger("", f.logLevel)
	if err != nil {
		return err
	}
	defer server.SyncLogger(log)

	opts := client.Options{
		URL:      f.url,
		Room:     f.room,
		Name:     f.name,
		Autoplay: f.autoplay,
		Log:      log,
	}
	if f.user != "" {
		accounts, err := localAccount(f.user, f.password)
		if err != nil {
			return err
		}
		opts.Credentials = accounts
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, opts)
	if err != nil {
		return err
	}
	defer c.Close()

	err = c.Run(ctx)
	s := c.Summary()
	log.Infow("session ended", "player", s.Player, "name", s.Name, "hits", s.Hits, "results", s.Results)
	if errors.Is(err, context.Canceled) || errors.Is(err, client.ErrClosed) {
		return nil
	}
	return err
}
