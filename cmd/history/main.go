// cmd/history/main.go is a one-shot lookup against the best-sellers history
// through the same validation, cache and retry path the API uses.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"

	"github.com/spf13/cobra"

	"github.com/briangreenhill/bestsellers/internal/app"
	"github.com/briangreenhill/bestsellers/internal/bestsellers"
	"github.com/briangreenhill/bestsellers/internal/config"
)

const version = "v0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		q      bestsellers.Query
		offset int
		pretty bool
	)

	root := &cobra.Command{
		Use:   "history",
		Short: "Look up NYT best-sellers history",
		Long: "Look up NYT best-sellers history by author, title or ISBN.\n\n" +
			"Configuration is read from the environment (NYT_API_KEY is required).",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("offset") {
				q.Offset = &offset
			}
			err := run(cmd.Context(), q, pretty, stdout, stderr)
			if err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
			}
			return err
		},
	}

	root.Flags().StringVar(&q.Author, "author", "", "filter by author")
	root.Flags().StringVar(&q.Title, "title", "", "filter by title")
	root.Flags().StringSliceVar(&q.ISBN, "isbn", nil, "filter by ISBN-10 or ISBN-13 (repeatable)")
	root.Flags().IntVar(&offset, "offset", 0, "result offset, a multiple of 20")
	root.Flags().BoolVar(&pretty, "pretty", false, "indent the JSON output")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(stdout, "bestsellers history "+version)
		},
	})

	return root
}

func run(ctx context.Context, q bestsellers.Query, pretty bool, stdout, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := app.NewLogger(cfg, stderr)
	store, closeStore, err := app.NewStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	gw, err := app.NewGateway(cfg, store, logger)
	if err != nil {
		return err
	}

	body, err := gw.History(ctx, q)
	if err != nil {
		var ve *bestsellers.ValidationError
		if errors.As(err, &ve) {
			printFields(stderr, ve)
		}
		return err
	}

	if pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, body, "", "  "); err == nil {
			body = buf.Bytes()
		}
	}
	_, err = fmt.Fprintln(stdout, string(body))
	return err
}

func printFields(w io.Writer, ve *bestsellers.ValidationError) {
	names := make([]string, 0, len(ve.Fields))
	for k := range ve.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		for _, msg := range ve.Fields[k] {
			fmt.Fprintf(w, "  %s: %s\n", k, msg)
		}
	}
}
