package main

import (
	"chainledger/internal/core"

	"github.com/spf13/cobra"
)

func newArchiveCommand(opts *rootOptions) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Snapshot the stored chain to the archive store",
		Args:  exactArgs(),
		RunE: withSession(opts, func(cmd *cobra.Command, s *session, _ []string) error {
			store, err := core.OpenArchiveStore(cmd.Context(), s.cfg.Blob)
			if err != nil {
				return err
			}
			if list {
				infos, err := s.svc.Archives(cmd.Context(), store)
				if err != nil {
					return err
				}
				return s.render(infos, func() {
					for _, info := range infos {
						s.printf("%s\t%d\t%s\n", info.Key, info.Size, info.Metadata["jumps"])
					}
				})
			}
			info, err := s.svc.Archive(cmd.Context(), store)
			if err != nil {
				return err
			}
			return s.render(info, func() {
				s.printf("archived %s (%d bytes)\n", info.Key, info.Size)
			})
		}),
	}
	cmd.Flags().BoolVar(&list, "list", false, "list snapshots of the chain instead of writing one")
	return cmd
}

func newRestoreCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore key",
		Short: "Replace the stored chain with an archived snapshot",
		Args:  exactArgs("key"),
		RunE: withSession(opts, func(cmd *cobra.Command, s *session, args []string) error {
			store, err := core.OpenArchiveStore(cmd.Context(), s.cfg.Blob)
			if err != nil {
				return err
			}
			if err := s.svc.RestoreArchive(cmd.Context(), store, args[0]); err != nil {
				return err
			}
			n, err := s.svc.Flush(cmd.Context())
			if err != nil {
				return err
			}
			return s.render(map[string]any{"key": args[0], "records": n}, func() {
				s.printf("restored %s\n", args[0])
			})
		}),
	}
}
