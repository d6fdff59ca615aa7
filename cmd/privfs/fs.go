package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"xdao.co/privatefs/model"
	"xdao.co/privatefs/private"
	"xdao.co/privatefs/workspace"
)

func (a *app) initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an empty file system for the identity",
		Args:  exactArgs(0, "init [--force]"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ks, err := a.keyStore()
			if err != nil {
				return err
			}
			st, closeFn, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			ws, err := workspace.Create(st, a.workspaceOptions())
			if err != nil {
				return err
			}
			c, err := ws.Commit(ctx)
			if err != nil {
				return err
			}
			path, err := ks.InitializeIdentity(a.cfg.Identity, c.Ref, c.Forest, force)
			if err != nil {
				return err
			}
			a.log.WithField("path", path).Info("identity initialized")
			return a.printJSON(commitReport(c, 0))
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing identity (its files become unreachable)")
	return cmd
}

func (a *app) mkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a directory and any missing parents",
		Args:  exactArgs(1, "mkdir <path>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), true, func(s *session) error {
				return s.ws.Mkdir(cmd.Context(), args[0])
			})
		},
	}
}

func (a *app) writeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write <path> [<file>|-]",
		Short: "Write a file from a local file or stdin",
		Args:  rangeArgs(1, 2, "write <path> [<file>|-]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := a.in
			if len(args) == 2 && args[1] != "-" {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				src = f
			}
			return a.withSession(cmd.Context(), true, func(s *session) error {
				return s.ws.Write(cmd.Context(), args[0], src)
			})
		},
	}
}

// refFlags select a capability instead of the identity's own root.
type refFlags struct {
	text   string
	file   string
	share  string
	pinned bool
}

func (r *refFlags) add(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.text, "ref", "", "Read through this ref (text form)")
	cmd.Flags().StringVar(&r.file, "ref-file", "", "Read through the ref stored in this file")
	cmd.Flags().StringVar(&r.share, "share", "", "Read through a share saved for the identity")
	cmd.Flags().BoolVar(&r.pinned, "pinned", false, "Read the revision the ref was minted for, not the newest one")
}

func (r *refFlags) set() bool { return r.text != "" || r.file != "" || r.share != "" }

func (a *app) loadRef(s *session, r *refFlags) (private.PrivateRef, error) {
	return s.ks.LoadRef(a.cfg.Identity, r.text, r.file, r.share)
}

// refNode resolves r against the session's forest, moves to the node's
// newest revision unless --pinned, and walks to path below it. An empty path
// or "/" names the ref's own node.
func (a *app) refNode(ctx context.Context, s *session, r *refFlags, path string) (private.Node, error) {
	ref, err := a.loadRef(s, r)
	if err != nil {
		return nil, err
	}
	n, err := s.ws.OpenRef(ctx, ref, r.pinned)
	if err != nil {
		return nil, err
	}
	if path == "" || path == "/" {
		return n, nil
	}
	dir, ok := n.(*private.Directory)
	if !ok {
		return nil, &private.Error{Kind: private.KindNotADirectory, Message: "ref names a file"}
	}
	return dir.GetNode(ctx, path, s.ws.Forest(), s.store)
}

func argOr(args []string, def string) string {
	if len(args) > 0 {
		return args[0]
	}
	return def
}

func (a *app) catCmd() *cobra.Command {
	var rf refFlags
	cmd := &cobra.Command{
		Use:   "cat [<path>]",
		Short: "Write a file's content to stdout",
		Args:  rangeArgs(0, 1, "cat [<path>] [--ref <ref>|--ref-file <file>|--share <name>]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !rf.set() && len(args) == 0 {
				return usagef("cat needs a path or a ref")
			}
			return a.withSession(ctx, false, func(s *session) error {
				var r io.Reader
				if rf.set() {
					n, err := a.refNode(ctx, s, &rf, argOr(args, ""))
					if err != nil {
						return err
					}
					f, ok := n.(*private.File)
					if !ok {
						return &private.Error{Kind: private.KindNotAFile, Message: "not a file"}
					}
					r = f.Reader(ctx, s.store)
				} else {
					var err error
					if r, err = s.ws.Open(ctx, args[0]); err != nil {
						return err
					}
				}
				_, err := io.Copy(a.out, r)
				return err
			})
		},
	}
	rf.add(cmd)
	return cmd
}

func (a *app) lsCmd() *cobra.Command {
	var rf refFlags
	cmd := &cobra.Command{
		Use:   "ls [<path>]",
		Short: "List a directory",
		Args:  rangeArgs(0, 1, "ls [<path>] [--ref <ref>|--ref-file <file>|--share <name>]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := argOr(args, "/")
			return a.withSession(ctx, false, func(s *session) error {
				var entries []private.EntryInfo
				if rf.set() {
					n, err := a.refNode(ctx, s, &rf, path)
					if err != nil {
						return err
					}
					dir, ok := n.(*private.Directory)
					if !ok {
						return &private.Error{Kind: private.KindNotADirectory, Message: "not a directory"}
					}
					entries = dir.ListEntries()
				} else {
					var err error
					if entries, err = s.ws.Ls(ctx, path); err != nil {
						return err
					}
				}
				return a.printJSON(model.FromEntries(path, entries))
			})
		},
	}
	rf.add(cmd)
	return cmd
}

func (a *app) statCmd() *cobra.Command {
	var rf refFlags
	cmd := &cobra.Command{
		Use:   "stat [<path>]",
		Short: "Show a node's revision metadata",
		Args:  rangeArgs(0, 1, "stat [<path>] [--ref <ref>|--ref-file <file>|--share <name>]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := argOr(args, "/")
			return a.withSession(ctx, false, func(s *session) error {
				var (
					n   private.Node
					err error
				)
				if rf.set() {
					n, err = a.refNode(ctx, s, &rf, path)
				} else {
					n, err = s.ws.Stat(ctx, path)
				}
				if err != nil {
					return err
				}
				return a.printJSON(model.FromNode(n))
			})
		},
	}
	rf.add(cmd)
	return cmd
}

func (a *app) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Remove a file or directory",
		Args:  exactArgs(1, "rm <path>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), true, func(s *session) error {
				return s.ws.Rm(cmd.Context(), args[0])
			})
		},
	}
}

func (a *app) mvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <from> <to>",
		Short: "Move a node; refs shared for it stop seeing new revisions",
		Args:  exactArgs(2, "mv <from> <to>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), true, func(s *session) error {
				return s.ws.Mv(cmd.Context(), args[0], args[1])
			})
		},
	}
}

func (a *app) cpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cp <from> <to>",
		Short: "Copy a node into an independent subtree",
		Args:  exactArgs(2, "cp <from> <to>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), true, func(s *session) error {
				return s.ws.Cp(cmd.Context(), args[0], args[1])
			})
		},
	}
}

func (a *app) shareCmd() *cobra.Command {
	var (
		name  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "share <path>",
		Short: "Mint a read capability for a node",
		Long: `share prints a ref granting read access to the node at path, everything
below it, and all of its later revisions. With --name the ref is also saved
in the key store.`,
		Args: exactArgs(1, "share <path> [--name <name>] [--force]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withSession(ctx, true, func(s *session) error {
				ref, n, err := s.ws.Share(ctx, args[0])
				if err != nil {
					return err
				}
				if name != "" {
					path, err := s.ks.SaveShare(a.cfg.Identity, name, ref, force)
					if err != nil {
						return err
					}
					a.log.WithField("path", path).Info("share saved")
				}
				return a.printJSON(model.Share{Path: args[0], Kind: n.Kind().String(), RefSecret: ref.String()})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Save the ref in the key store under this name")
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing share with the same name")
	return cmd
}

func (a *app) resolveCmd() *cobra.Command {
	var rf refFlags
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "List every revision filed under a ref's label",
		Args:  exactArgs(0, "resolve (--ref <ref>|--ref-file <file>|--share <name>)"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if !rf.set() {
				return usagef("resolve needs --ref, --ref-file or --share")
			}
			return a.withSession(ctx, false, func(s *session) error {
				ref, err := a.loadRef(s, &rf)
				if err != nil {
					return err
				}
				res, err := s.ws.Resolve(ctx, ref)
				if err != nil {
					return err
				}
				if res.Conflicted() {
					a.log.WithField("candidates", len(res.Candidates)).Warn("conflicting revisions")
				}
				return a.printJSON(model.FromResolution(res))
			})
		},
	}
	rf.add(cmd)
	return cmd
}

func (a *app) commitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commit",
		Short: "Persist merges found while opening the file system",
		Args:  exactArgs(0, "commit"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withSession(ctx, false, func(s *session) error {
				if !s.ws.Dirty() {
					a.log.Debug("nothing to commit")
				}
				c, err := a.record(ctx, s)
				if err != nil {
					return err
				}
				return a.printJSON(commitReport(c, 0))
			})
		},
	}
}

func (a *app) keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Inspect the key store",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List identities and their saved shares",
		Args:  exactArgs(0, "keys list"),
		RunE: func(*cobra.Command, []string) error {
			ks, err := a.keyStore()
			if err != nil {
				return err
			}
			entries, err := ks.List()
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintln(a.out, e.Identifier)
				for _, s := range e.Shares {
					fmt.Fprintf(a.out, "  %s\n", s)
				}
			}
			return nil
		},
	})

	var share string
	export := &cobra.Command{
		Use:   "export",
		Short: "Print the identity's root ref, or a saved share",
		Args:  exactArgs(0, "keys export [--share <name>]"),
		RunE: func(*cobra.Command, []string) error {
			ks, err := a.keyStore()
			if err != nil {
				return err
			}
			s, err := ks.Export(a.cfg.Identity, share)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, s)
			return nil
		},
	}
	export.Flags().StringVar(&share, "share", "", "Share name")
	cmd.AddCommand(export)
	return cmd
}
