package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/punchbridge/internal/cloud"
	"github.com/BrandonDHaskell/punchbridge/internal/db"
	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/service"
	sqlitestore "github.com/BrandonDHaskell/punchbridge/internal/punchbridge/store/sqlite"
)

func newRefreshCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Rebuild the local directory cache from the remote directory once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			logger, closer := newLogger(cfg)
			defer closer.Close()

			ctx := cmd.Context()
			conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath})
			if err != nil {
				return err
			}
			defer conn.Close()
			writer := db.NewWorker(conn)
			defer writer.Close()

			remote, err := cloud.NewFirestore(ctx, cfg.ProjectID, cfg.CredentialsFile)
			if err != nil {
				return err
			}
			defer remote.Close()

			svc := service.NewDirectoryService(remote, sqlitestore.NewDirectoryStore(conn, writer),
				cfg.DirectoryCollection, logger, nil)
			res, err := svc.Refresh(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "fetched=%d usable=%d skipped=%d collisions=%d\n",
				res.Fetched, res.Usable, res.Skipped, res.Collisions)
			return nil
		},
	}
}
