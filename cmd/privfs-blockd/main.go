package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"

	"xdao.co/privatefs/internal/config"
	"xdao.co/privatefs/internal/logging"
	"xdao.co/privatefs/storage/grpcstore"
	"xdao.co/privatefs/storage/registry"

	_ "xdao.co/privatefs/storage/badgerstore"
	_ "xdao.co/privatefs/storage/ipfs"
	_ "xdao.co/privatefs/storage/localfs"
	_ "xdao.co/privatefs/storage/s3store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var (
		configPath   string
		listBackends bool
	)
	cmd := &cobra.Command{
		Use:          "privfs-blockd",
		Short:        "Serve a block store over gRPC",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
	}
	pf := cmd.Flags()
	pf.StringVar(&configPath, config.ConfigFlag, "", "Config file (default $XDG_CONFIG_HOME/privfs/config.yaml)")
	pf.String("listen", config.DefaultListen, "Listen address")
	pf.Duration("shutdown-timeout", config.DefaultShutdownTimeout, "Grace period for in-flight calls on shutdown")
	pf.String("store-config", "", "Block store config file (multi-backend); overrides --backend")
	pf.String("backend", config.DefaultBackend, "Block store backend")
	pf.String("prefer", "", "Backend from --store-config that receives writes")
	pf.String("log-level", "info", "Log level")
	pf.String("log-format", "text", "Log format: text or json")
	pf.String("log-output", "stderr", "Log output: stdout, stderr or a file path")
	pf.BoolVar(&listBackends, "list-backends", false, "List supported backends and exit")
	registry.RegisterFlags(pf, registry.UsageDaemon)

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		if listBackends {
			for _, b := range registry.List(registry.UsageDaemon) {
				if b.Description == "" {
					fmt.Fprintln(out, b.Name)
					continue
				}
				fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
			}
			return nil
		}

		cfg, err := config.Load(configPath, pf)
		if err != nil {
			return err
		}
		log, closeLog, err := logging.New(logging.Options{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Output: cfg.Logging.Output,
		})
		if err != nil {
			return err
		}
		defer closeLog()
		return serve(cmd.Context(), cfg, pf, log, nil)
	}
	return cmd
}

// serve runs the gRPC server until ctx is done, then stops it gracefully
// within the configured timeout. ready, if set, receives the bound address.
func serve(ctx context.Context, cfg *config.Config, fs *pflag.FlagSet, log logrus.FieldLogger, ready func(net.Addr)) error {
	st, closeStore, err := cfg.Store.Open(ctx, registry.UsageDaemon, fs)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer func() {
			if err := closeStore(); err != nil {
				log.WithError(err).Warn("closing block store")
			}
		}()
	}

	lis, err := net.Listen("tcp", cfg.Daemon.Listen)
	if err != nil {
		return err
	}
	s := grpc.NewServer()
	grpcstore.RegisterBlockStoreServer(s, &grpcstore.Server{Store: st, Log: log})

	backend := cfg.Store.Backend
	if cfg.Store.ConfigFile != "" {
		backend = cfg.Store.ConfigFile
	}
	log.WithFields(logrus.Fields{"addr": lis.Addr().String(), "backend": backend}).Info("privfs-blockd listening")
	if ready != nil {
		ready(lis.Addr())
	}

	errc := make(chan error, 1)
	go func() { errc <- s.Serve(lis) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	stopped := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(cfg.Daemon.ShutdownTimeout):
		log.Warn("shutdown timeout; closing open connections")
		s.Stop()
	}
	if err := <-errc; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
