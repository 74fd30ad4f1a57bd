package cli

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/shelfcache/pkg/books"
	"github.com/matzehuels/shelfcache/pkg/tiered"
)

// getOptions holds flags shared by the get subcommands.
type getOptions struct {
	json   bool
	noWait bool
}

func (c *CLI) getCommand() *cobra.Command {
	var opts getOptions

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Look up books or authors through the cache",
		Long: `Look up data through the same cache tiers the server uses.

With a shared distributed cache configured, get answers from entries the
server already fetched. A result still being fetched is waited for unless
--no-wait is given.`,
	}

	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "print the result as JSON")
	cmd.PersistentFlags().BoolVar(&opts.noWait, "no-wait", false, "return a pending result instead of waiting for the fetch")

	cmd.AddCommand(c.getTrendingCommand(&opts))
	cmd.AddCommand(c.getAuthorCommand(&opts))
	return cmd
}

func (c *CLI) getTrendingCommand(opts *getOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "trending",
		Short:   "Show trending books",
		Example: `  shelfcache get trending --json`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := c.newApp()
			defer a.Close()

			prog := newProgress(c.Logger)
			r, err := resolve(cmd.Context(), c, opts, a.svc, a.svc.TrendingKey(), "Fetching trending books...", a.svc.TrendingBooks)
			if err != nil {
				return err
			}
			prog.done("trending books", "state", r.State, "count", len(r.Data))
			return printResult(c, r, opts, func() {
				printBooks(c.out, r.Data)
			})
		},
	}
}

func (c *CLI) getAuthorCommand(opts *getOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "author <name>",
		Short:   "Show an author",
		Example: `  shelfcache get author "Ursula K. Le Guin"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args, " ")
			a := c.newApp()
			defer a.Close()

			prog := newProgress(c.Logger)
			r, err := resolve(cmd.Context(), c, opts, a.svc, a.svc.AuthorKey(name), "Fetching "+name+"...", func(ctx context.Context) (tiered.Result[books.Author], error) {
				return a.svc.Author(ctx, name)
			})
			if err != nil {
				return err
			}
			prog.done("author", "state", r.State, "key", r.Data.Key)
			return printResult(c, r, opts, func() {
				printAuthor(c.out, r.Data)
			})
		},
	}
}

type settler interface {
	Settle(ctx context.Context, key string) error
}

// resolve calls get and, when the answer is pending, waits for the fetch
// behind key before asking again.
func resolve[T any](ctx context.Context, c *CLI, opts *getOptions, s settler, key, msg string, get func(context.Context) (tiered.Result[T], error)) (tiered.Result[T], error) {
	r, err := get(ctx)
	if err != nil || r.Ready() || opts.noWait {
		return r, err
	}

	spin := newSpinner(ctx, c.errOut, msg)
	spin.Start()
	err = s.Settle(ctx, key)
	spin.Stop()
	if err != nil {
		return r, err
	}
	return get(ctx)
}

func printResult[T any](c *CLI, r tiered.Result[T], opts *getOptions, human func()) error {
	if opts.json {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	if !r.Ready() {
		printInfo(c.out, "Still fetching; try again shortly")
		return nil
	}
	human()
	printState(c.out, r)
	return nil
}
