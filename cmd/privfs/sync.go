package main

import (
	"bytes"
	"io"
	"os"

	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"

	"xdao.co/privatefs/model"
	"xdao.co/privatefs/private"
	"xdao.co/privatefs/storage"
	"xdao.co/privatefs/workspace"
)

func (a *app) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <bundle.tar>|-",
		Short: "Commit and write a bundle another writer can import",
		Args:  exactArgs(1, "export <bundle.tar>|-"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withSession(ctx, false, func(s *session) error {
				toStdout := args[0] == "-"
				var w io.Writer = a.out
				if !toStdout {
					f, err := os.Create(args[0])
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				c, n, err := s.ws.Export(ctx, w)
				if err != nil {
					return err
				}
				if err := s.ks.Commit(a.cfg.Identity, c.Ref, c.Forest); err != nil {
					return err
				}
				if toStdout {
					return nil
				}
				return a.printJSON(commitReport(c, n))
			})
		},
	}
}

func mergeReport(res workspace.MergeResult) model.MergeReport {
	return model.MergeReport{
		Forest:        res.Forest.String(),
		ChangedLabels: len(res.Changes),
		Healed:        res.Healed,
	}
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <bundle.tar>|-",
		Short: "Load a bundle and merge its forest",
		Args:  exactArgs(1, "import <bundle.tar>|-"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withSession(ctx, true, func(s *session) error {
				r := a.in
				if args[0] != "-" {
					f, err := os.Open(args[0])
					if err != nil {
						return err
					}
					defer f.Close()
					r = f
				}
				m, res, err := s.ws.Import(ctx, r)
				if err != nil {
					return err
				}
				report := mergeReport(res)
				roots := make(map[string]string, len(m.Roots))
				for k, v := range m.Roots {
					roots[k] = v.String()
				}
				report.Bundle = &model.Bundle{Blocks: len(m.Blocks), Roots: roots}
				return a.printJSON(report)
			})
		},
	}
}

func (a *app) mergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <forest-cid>",
		Short: "Merge a forest already present in the block store",
		Args:  exactArgs(1, "merge <forest-cid>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := cid.Decode(args[0])
			if err != nil {
				return storage.ErrInvalidCID
			}
			return a.withSession(ctx, true, func(s *session) error {
				res, err := s.ws.MergeCID(ctx, id)
				if err != nil {
					return err
				}
				return a.printJSON(mergeReport(res))
			})
		},
	}
}

func (a *app) gcCmd() *cobra.Command {
	var keepShares []string
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Drop superseded conflict candidates from the forest",
		Long: `gc removes forest entries for conflicting revisions that a merged revision
has replaced. Revisions reachable from the root, and from saved shares named
with --keep, survive, and every label keeps at least one entry so readers can
still find newer revisions. Blocks stay in the block store.`,
		Args: exactArgs(0, "gc [--keep <share> ...]"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withSession(ctx, false, func(s *session) error {
				var keep []private.PrivateRef
				for _, name := range keepShares {
					ref, err := s.ks.LoadShare(a.cfg.Identity, name)
					if err != nil {
						return err
					}
					keep = append(keep, ref)
				}
				if s.ws.Dirty() {
					if _, err := a.record(ctx, s); err != nil {
						return err
					}
				}
				stats, forestRoot, err := s.ws.GC(ctx, keep...)
				if err != nil {
					return err
				}
				ref := private.MintRef(s.ws.Root())
				if err := s.ks.Commit(a.cfg.Identity, ref, forestRoot); err != nil {
					return err
				}
				return a.printJSON(model.GCReport{
					Live:       stats.Live,
					Superseded: stats.Superseded,
					Removed:    stats.Removed,
					Forest:     forestRoot.String(),
				})
			})
		},
	}
	cmd.Flags().StringSliceVar(&keepShares, "keep", nil, "Saved share whose revisions must survive (repeatable)")
	return cmd
}

func (a *app) blockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "block",
		Short: "Raw block store access",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "put <file>|-",
		Short: "Store a raw block and print its CID",
		Args:  exactArgs(1, "block put <file>|-"),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				b   []byte
				err error
			)
			if args[0] == "-" {
				b, err = io.ReadAll(a.in)
			} else {
				b, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			st, closeFn, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			id, err := st.Put(cmd.Context(), b)
			if err != nil {
				return err
			}
			_, err = io.WriteString(a.out, id.String()+"\n")
			return err
		},
	})

	var outPath string
	get := &cobra.Command{
		Use:   "get <cid>",
		Short: "Fetch a raw block",
		Args:  exactArgs(1, "block get <cid> [--out <file>]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cid.Decode(args[0])
			if err != nil {
				return storage.ErrInvalidCID
			}
			st, closeFn, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			b, err := st.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if outPath == "" {
				_, err = io.Copy(a.out, bytes.NewReader(b))
				return err
			}
			return os.WriteFile(outPath, b, 0o600)
		},
	}
	get.Flags().StringVar(&outPath, "out", "", "Output file (default stdout)")
	cmd.AddCommand(get)
	return cmd
}
