package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pbaille/moods/internal/api"
	"github.com/pbaille/moods/internal/config"
	"github.com/pbaille/moods/internal/journal"
	"github.com/pbaille/moods/internal/logger"
	"github.com/pbaille/moods/internal/mcptools"
	"github.com/pbaille/moods/internal/printers"
	"github.com/pbaille/moods/internal/remind"
	"github.com/pbaille/moods/internal/store"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "moods",
		Short:        "Mood journal with tags and weekly trends",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			log = logger.New(cfg.Log.Level, cfg.Log.Format)
			if cfg.File != "" {
				log.Debug("config loaded", "file", cfg.File)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ~/.moods/config.yaml)")
	flags.String("db", "~/.moods/moods.db", "database path")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text, json")
	flags.String("timezone", "", "IANA zone entries are recorded in (default system zone)")

	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(latestCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(tagsCmd())
	rootCmd.AddCommand(trendsCmd())
	rootCmd.AddCommand(remindCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(mcpCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getStore() (*store.Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(cfg.DB)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return store.New(cfg.DB, store.WithLogger(log))
}

// getJournal opens the store and wraps it; the caller closes the store
func getJournal() (*journal.Journal, *store.Store, error) {
	s, err := getStore()
	if err != nil {
		return nil, nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	j, err := journal.New(s, journal.WithLogger(log), journal.WithLocation(loc))
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return j, s, nil
}

// signalContext is cancelled on interrupt or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func addCmd() *cobra.Command {
	var notes string
	var tags []string

	cmd := &cobra.Command{
		Use:   "add <rating>",
		Short: "Record a mood from 1 (very low) to 5 (very high)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rating, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("rating must be a number: %q", args[0])
			}

			draft := journal.Draft{Rating: rating, Notes: notes}
			for _, t := range tags {
				tag, err := journal.ParseDraftTag(t)
				if err != nil {
					return err
				}
				draft.Tags = append(draft.Tags, tag)
			}

			j, s, err := getJournal()
			if err != nil {
				return err
			}
			defer s.Close()

			entry, err := j.Record(cmd.Context(), draft)
			if err != nil {
				return err
			}

			fmt.Printf("Recorded mood %s\n\n", printers.ShortID(entry.ID))
			printers.Entry(os.Stdout, entry)
			return nil
		},
	}

	cmd.Flags().StringVarP(&notes, "notes", "m", "", "free-form notes")
	cmd.Flags().StringArrayVarP(&tags, "tag", "t", nil, "tag as name:category (activity, place or event), repeatable")
	return cmd
}

func listCmd() *cobra.Command {
	var limit int
	var from, to, where string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, s, err := getJournal()
			if err != nil {
				return err
			}
			defer s.Close()

			q := journal.Query{Where: where, Limit: limit}
			if q.From, err = j.ParseTime(from, false); err != nil {
				return err
			}
			if q.To, err = j.ParseTime(to, true); err != nil {
				return err
			}

			entries, err := j.Entries(cmd.Context(), q)
			if err != nil {
				return err
			}

			if len(entries) == 0 {
				if from != "" || to != "" || where != "" {
					fmt.Println("No matching entries.")
				} else {
					fmt.Println("No entries yet. Use 'moods add' to record one.")
				}
				return nil
			}

			printers.Entries(os.Stdout, entries)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show (0 for all)")
	cmd.Flags().StringVar(&from, "from", "", "start of range: YYYY-MM-DD, YYYY-MM-DDTHH:MM or RFC3339")
	cmd.Flags().StringVar(&to, "to", "", "end of range, inclusive; a bare date covers the whole day")
	cmd.Flags().StringVarP(&where, "where", "w", "", "filter expression, e.g. \"rating <= 2 && 'Work' in events\"")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show entry details",
		Long:  "Show entry details. Any unambiguous prefix of the id is accepted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, s, err := getJournal()
			if err != nil {
				return err
			}
			defer s.Close()

			entry, err := j.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			printers.Entry(os.Stdout, *entry)
			return nil
		},
	}
}

func latestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Show the most recent mood",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, s, err := getJournal()
			if err != nil {
				return err
			}
			defer s.Close()

			latest, err := j.Latest(cmd.Context())
			if err != nil {
				return err
			}

			printers.Latest(os.Stdout, latest)
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <text>",
		Short: "Search entry notes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, s, err := getJournal()
			if err != nil {
				return err
			}
			defer s.Close()

			entries, err := j.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			if len(entries) == 0 {
				fmt.Println("No matching entries found.")
				return nil
			}

			printers.Entries(os.Stdout, entries)
			return nil
		},
	}
}

func tagsCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "tags",
		Short: "List tags by category",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, s, err := getJournal()
			if err != nil {
				return err
			}
			defer s.Close()

			tags, err := j.Tags(cmd.Context(), category)
			if err != nil {
				return err
			}

			if len(tags) == 0 {
				fmt.Println("No tags yet. Tags are created when you add them to an entry.")
				return nil
			}

			printers.Tags(os.Stdout, tags)
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "only list one category: activity, place or event")
	return cmd
}

func trendsCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Show daily averages for the last 7 days and the rating distribution",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, s, err := getJournal()
			if err != nil {
				return err
			}
			defer s.Close()

			if !watch {
				summary, err := j.Summary(cmd.Context())
				if err != nil {
					return err
				}
				printers.Trends(os.Stdout, summary)
				return nil
			}

			ctx, stop := signalContext()
			defer stop()

			analytics := journal.NewAnalytics(j, cfg.Analytics.Grace)
			defer analytics.Close()

			feed, err := analytics.Subscribe(ctx)
			if err != nil {
				return err
			}
			for summary := range feed {
				fmt.Printf("\n%s\n", j.Now().Format("15:04:05"))
				printers.Trends(os.Stdout, summary)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and redraw after every change")
	return cmd
}

func remindCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Tell whether it is time to record a mood",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, s, err := getJournal()
			if err != nil {
				return err
			}
			defer s.Close()

			checker := remind.NewChecker(j, cfg.Reminder.Threshold, log)

			if !watch {
				res, err := checker.Check(cmd.Context())
				if err != nil {
					return err
				}
				printers.Reminder(os.Stdout, res)
				return nil
			}

			ctx, stop := signalContext()
			defer stop()

			err = checker.Run(ctx, cfg.Reminder.Interval, func(res remind.Result) {
				printers.Reminder(os.Stdout, res)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "keep checking at the configured interval")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, s, err := getJournal()
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := j.Stats(cmd.Context())
			if err != nil {
				return err
			}

			printers.Stats(os.Stdout, st, cfg.DB)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST and websocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, s, err := getJournal()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, stop := signalContext()
			defer stop()

			analytics := journal.NewAnalytics(j, cfg.Analytics.Grace)
			defer analytics.Close()

			checker := remind.NewChecker(j, cfg.Reminder.Threshold, log)
			go func() {
				_ = checker.Run(ctx, cfg.Reminder.Interval, func(res remind.Result) {
					log.Warn("time to record a mood", "reason", res.Reason())
				})
			}()

			server := api.New(j, analytics, cfg.Serve.Addr, log)
			return server.Run(ctx)
		},
	}

	cmd.Flags().StringP("addr", "a", "127.0.0.1:8080", "server address")
	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the journal to MCP clients over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, s, err := getJournal()
			if err != nil {
				return err
			}
			defer s.Close()

			started := time.Now()
			log.Info("mcp server starting", "db", cfg.DB)
			err = mcptools.ServeStdio(mcptools.NewServer(j))
			log.Info("mcp server stopped", "uptime", time.Since(started).Truncate(time.Second))
			return err
		},
	}
}
