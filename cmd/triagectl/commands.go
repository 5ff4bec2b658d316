package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/inbox-triage/internal/core/domain"
	"github.com/kirillkom/inbox-triage/internal/core/ports"
)

type services struct {
	search   ports.EmailSearcher
	backfill ports.EmbeddingBackfiller
	queue    ports.BackfillQueue
	close    func()
}

type opener func(ctx context.Context) (*services, error)

func newRootCmd(open opener, out io.Writer) *cobra.Command {
	var userID string

	root := &cobra.Command{
		Use:           "triagectl",
		Short:         "Search and maintain triaged mailboxes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&userID, "user", "", "mailbox owner id (required)")
	_ = root.MarkPersistentFlagRequired("user")

	withServices := func(fn func(ctx context.Context, svc *services) (any, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			svc, err := open(cmd.Context())
			if err != nil {
				return err
			}
			if svc.close != nil {
				defer svc.close()
			}
			result, err := fn(cmd.Context(), svc)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}
	}

	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Natural-language search",
		Args:  cobra.MinimumNArgs(1),
	}
	search.RunE = func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		return withServices(func(ctx context.Context, svc *services) (any, error) {
			return svc.search.SmartSearch(ctx, userID, query)
		})(cmd, args)
	}

	keyword := &cobra.Command{
		Use:   "keyword <text>",
		Short: "Substring search over subject, sender and preview",
		Args:  cobra.MinimumNArgs(1),
	}
	keyword.RunE = func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		return withServices(func(ctx context.Context, svc *services) (any, error) {
			return svc.search.KeywordSearch(ctx, userID, text)
		})(cmd, args)
	}

	var batchSize int
	backfill := &cobra.Command{
		Use:   "backfill",
		Short: "Embed messages that have no embedding yet",
		Args:  cobra.NoArgs,
		RunE: withServices(func(ctx context.Context, svc *services) (any, error) {
			return svc.backfill.GenerateMissing(ctx, userID, batchSize)
		}),
	}
	backfill.Flags().IntVar(&batchSize, "batch-size", 0, "messages per run (default 100, max 500)")

	var enqueueBatch int
	enqueue := &cobra.Command{
		Use:   "enqueue-backfill",
		Short: "Ask the worker to run a backfill",
		Args:  cobra.NoArgs,
		RunE: withServices(func(ctx context.Context, svc *services) (any, error) {
			if svc.queue == nil {
				return nil, errors.New("NATS_URL is not configured")
			}
			req := domain.BackfillRequest{UserID: userID, BatchSize: enqueueBatch, RequestedAt: time.Now().UTC()}
			if err := svc.queue.PublishBackfillRequested(ctx, req); err != nil {
				return nil, err
			}
			return req, nil
		}),
	}
	enqueue.Flags().IntVar(&enqueueBatch, "batch-size", 0, "messages per run (default 100, max 500)")

	root.AddCommand(search, keyword, backfill, enqueue)
	return root
}
