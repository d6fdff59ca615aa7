package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"xdao.co/privatefs/internal/config"
	"xdao.co/privatefs/internal/logging"
	"xdao.co/privatefs/keys"
	"xdao.co/privatefs/model"
	"xdao.co/privatefs/storage"
	"xdao.co/privatefs/storage/registry"
	"xdao.co/privatefs/workspace"

	_ "xdao.co/privatefs/storage/badgerstore"
	_ "xdao.co/privatefs/storage/grpcstore"
	_ "xdao.co/privatefs/storage/ipfs"
	_ "xdao.co/privatefs/storage/localfs"
	_ "xdao.co/privatefs/storage/s3store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// usageError marks bad invocations; they exit with status 2.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	configPath string
	flags      *pflag.FlagSet

	cfg      *config.Config
	log      *logrus.Logger
	closeLog func() error

	// rand overrides the workspace randomness source; nil means crypto/rand.
	rand io.Reader
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	a := &app{in: in, out: out, errOut: errOut}
	return a.execute(ctx, args)
}

func (a *app) execute(ctx context.Context, args []string) int {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	err := root.ExecuteContext(ctx)
	if a.closeLog != nil {
		_ = a.closeLog()
	}
	if err == nil {
		return 0
	}
	var ue usageError
	if errors.As(err, &ue) {
		fmt.Fprintf(a.errOut, "error: %v\n\n", ue.err)
		fmt.Fprint(a.errOut, root.UsageString())
		return 2
	}
	a.printError(err)
	return 1
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "privfs",
		Short: "Encrypted, content-addressed private file system",
		Long: `privfs keeps an encrypted file system in a block store.

Every file and directory revision is sealed under its own keys and filed in a
forest under an opaque label. Capabilities (refs) grant read access to one
node, everything below it, and all of its later revisions.

Identities and shared refs live in a local key store (default ~/.privfs/keys).`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, config.ConfigFlag, "", "Config file (default $XDG_CONFIG_HOME/privfs/config.yaml)")
	pf.String("keystore", "", "Key store directory (default ~/.privfs/keys)")
	pf.StringP("identity", "i", config.DefaultIdentity, "Identity (file system) to operate on")
	pf.String("store-config", "", "Block store config file (multi-backend); overrides --backend")
	pf.String("backend", config.DefaultBackend, "Block store backend; see 'privfs backends'")
	pf.String("prefer", "", "Backend from --store-config that receives writes")
	pf.String("log-level", "info", "Log level: trace, debug, info, warn, error")
	pf.String("log-format", "text", "Log format: text or json")
	pf.String("log-output", "stderr", "Log output: stdout, stderr or a file path")
	registry.RegisterFlags(pf, registry.UsageCLI)
	a.flags = pf

	root.AddCommand(
		a.initCmd(),
		a.mkdirCmd(),
		a.writeCmd(),
		a.catCmd(),
		a.lsCmd(),
		a.statCmd(),
		a.rmCmd(),
		a.mvCmd(),
		a.cpCmd(),
		a.shareCmd(),
		a.resolveCmd(),
		a.commitCmd(),
		a.exportCmd(),
		a.importCmd(),
		a.mergeCmd(),
		a.gcCmd(),
		a.blockCmd(),
		a.keysCmd(),
		a.backendsCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath, a.flags)
	if err != nil {
		return err
	}
	l, closeFn, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return err
	}
	a.cfg, a.log, a.closeLog = cfg, l, closeFn
	a.log.WithFields(logrus.Fields{"command": cmd.Name(), "identity": cfg.Identity}).Debug("starting")
	return nil
}

func exactArgs(n int, usage string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != n {
			return usagef("usage: privfs %s", usage)
		}
		return nil
	}
}

func rangeArgs(min, max int, usage string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) < min || len(args) > max {
			return usagef("usage: privfs %s", usage)
		}
		return nil
	}
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printError(err error) {
	body := struct {
		Error *model.CodedError `json:"error"`
	}{model.MapError(err)}
	enc := json.NewEncoder(a.errOut)
	_ = enc.Encode(body)
}

func (a *app) keyStore() (*keys.KeyStore, error) {
	return keys.CreateKeyStore(a.cfg.KeyStore)
}

func (a *app) openStore(ctx context.Context) (storage.BlockStore, func() error, error) {
	st, closeFn, err := a.cfg.Store.Open(ctx, registry.UsageCLI, a.flags)
	if err != nil {
		return nil, nil, err
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return st, closeFn, nil
}

func (a *app) workspaceOptions() workspace.Options {
	return workspace.Options{Rand: a.rand, Logger: a.log}
}

// session is an opened identity: its key store entry, block store and
// workspace.
type session struct {
	ks    *keys.KeyStore
	store storage.BlockStore
	ws    *workspace.Workspace
	close func() error
}

func (a *app) open(ctx context.Context) (*session, error) {
	ks, err := a.keyStore()
	if err != nil {
		return nil, err
	}
	ref, forestRoot, err := ks.Load(a.cfg.Identity)
	if err != nil {
		if errors.Is(err, keys.ErrNotInitialized) {
			return nil, fmt.Errorf("%w (run 'privfs init')", err)
		}
		return nil, err
	}
	st, closeFn, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	ws, err := workspace.Open(ctx, st, ref, forestRoot, a.workspaceOptions())
	if err != nil {
		_ = closeFn()
		return nil, err
	}
	return &session{ks: ks, store: st, ws: ws, close: closeFn}, nil
}

// record commits the workspace and points the identity at the result.
func (a *app) record(ctx context.Context, s *session) (workspace.Commit, error) {
	c, err := s.ws.Commit(ctx)
	if err != nil {
		return workspace.Commit{}, err
	}
	if err := s.ks.Commit(a.cfg.Identity, c.Ref, c.Forest); err != nil {
		return workspace.Commit{}, err
	}
	return c, nil
}

// withSession opens the identity, runs fn, and when mutate is set commits
// the result.
func (a *app) withSession(ctx context.Context, mutate bool, fn func(*session) error) error {
	s, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer s.close()
	if err := fn(s); err != nil {
		return err
	}
	if mutate {
		_, err = a.record(ctx, s)
	}
	return err
}

func commitReport(c workspace.Commit, blocks int) model.Commit {
	return model.Commit{Label: c.Ref.Label.String(), Forest: c.Forest.String(), Blocks: blocks}
}

func (a *app) backendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List block store backends linked into this binary",
		Args:  exactArgs(0, "backends"),
		RunE: func(*cobra.Command, []string) error {
			for _, b := range registry.List(registry.UsageCLI) {
				if b.Description == "" {
					fmt.Fprintln(a.out, b.Name)
					continue
				}
				fmt.Fprintf(a.out, "%s\t%s\n", b.Name, b.Description)
			}
			return nil
		},
	}
}
