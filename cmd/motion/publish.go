package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type publishOptions struct {
	server      string
	topics      []string
	concurrency int
	timeout     time.Duration
}

func publishCmd() *cobra.Command {
	opts := publishOptions{
		server:      "http://localhost:8080",
		concurrency: 4,
		timeout:     10 * time.Second,
	}

	cmd := &cobra.Command{
		Use:   "publish [messages...]",
		Short: "Publish messages to a running server",
		Long: `Publish one or more messages to topics on a running 'motion serve'.

Every message is sent to every topic. Requests run concurrently,
up to --concurrency at a time.

Examples:
  motion publish --topic room:lobby "hello"
  motion publish -t room:a -t room:b "deploy finished" "all green"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			delivered, err := publishAll(ctx, http.DefaultClient, opts, args)
			if err != nil {
				return err
			}
			success("Published %d message(s) to %d topic(s), %d delivery(ies)",
				len(args), len(opts.topics), delivered)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.server, "server", "s", opts.server, "Base URL of the motion server")
	cmd.Flags().StringArrayVarP(&opts.topics, "topic", "t", nil, "Topic to publish to (repeatable)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", opts.concurrency, "Maximum concurrent requests")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", opts.timeout, "Overall timeout")
	_ = cmd.MarkFlagRequired("topic")

	return cmd
}

// publishAll posts every message to every topic and returns the total
// number of subscribers reached. The first failure cancels the rest.
func publishAll(ctx context.Context, client *http.Client, opts publishOptions, messages []string) (int64, error) {
	base := strings.TrimRight(opts.server, "/")
	var delivered atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	if opts.concurrency > 0 {
		g.SetLimit(opts.concurrency)
	}
	for _, topic := range opts.topics {
		endpoint := base + "/publish/" + url.PathEscape(topic)
		for _, msg := range messages {
			g.Go(func() error {
				n, err := publishOne(ctx, client, endpoint, msg)
				if err != nil {
					return fmt.Errorf("publish to %s: %w", topic, err)
				}
				delivered.Add(int64(n))
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return delivered.Load(), err
	}
	return delivered.Load(), nil
}

func publishOne(ctx context.Context, client *http.Client, endpoint, msg string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(msg))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out publishResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return out.Delivered, nil
}
