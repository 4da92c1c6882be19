package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/punchbridge/internal/db"
	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/types"
	sqlitestore "github.com/BrandonDHaskell/punchbridge/internal/punchbridge/store/sqlite"
)

type queueReport struct {
	types.QueueStats
	Head []pendingRow `json:"head,omitempty"`
}

type pendingRow struct {
	LocalID    int64  `json:"local_id"`
	UserID     string `json:"user_id"`
	CapturedAt string `json:"timestamp"`
	Status     int    `json:"status"`
}

func newQueueCommand(opts *rootOptions) *cobra.Command {
	var head int

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Print local queue statistics as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath})
			if err != nil {
				return err
			}
			defer conn.Close()
			writer := db.NewWorker(conn)
			defer writer.Close()

			q := sqlitestore.NewQueueStore(conn, writer, nil)
			stats, err := q.Stats(ctx)
			if err != nil {
				return err
			}
			report := queueReport{QueueStats: stats}

			if head > 0 {
				recs, err := q.FetchPendingBatch(ctx, head)
				if err != nil {
					return err
				}
				for _, r := range recs {
					report.Head = append(report.Head, pendingRow{
						LocalID:    r.LocalID,
						UserID:     r.RawDeviceUserID,
						CapturedAt: r.CapturedAt,
						Status:     r.StatusCode,
					})
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().IntVar(&head, "head", 0, "also list the oldest N pending records")
	return cmd
}
