package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/Supernova/internal/aggregate"
	"github.com/TobiSchelling/Supernova/internal/refresh"
	"github.com/TobiSchelling/Supernova/internal/report"
	"github.com/TobiSchelling/Supernova/internal/server"
	"github.com/TobiSchelling/Supernova/internal/social"
)

// --- connect / disconnect ---

var connectCreds social.Credentials

var connectCmd = &cobra.Command{
	Use:       "connect [facebook|instagram|youtube]",
	Short:     "Connect a Facebook Page, Instagram Business account or YouTube channel",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"facebook", "instagram", "youtube"},
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := social.ParsePlatform(args[0])
		if err != nil {
			return err
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.svc.ConnectPlatform(cmd.Context(), p, connectCreds)
		if err != nil {
			return err
		}
		fmt.Println(res.Message)
		fmt.Printf("Account id: %s\n", res.AccountID)
		return nil
	},
}

func init() {
	f := connectCmd.Flags()
	f.StringVar(&connectCreds.AccessToken, "token", os.Getenv("SUPERNOVA_ACCESS_TOKEN"), "Access token (or SUPERNOVA_ACCESS_TOKEN)")
	f.StringVar(&connectCreds.Identity, "id", "", "Page id, business account id or channel id")
	f.StringVar(&connectCreds.APIKey, "api-key", os.Getenv("SUPERNOVA_YOUTUBE_API_KEY"), "YouTube API key (or SUPERNOVA_YOUTUBE_API_KEY)")
	f.StringVar(&connectCreds.DisplayName, "name", "", "Display name override")
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect [platform] [account-id]",
	Short: "Disconnect one account, or every account of a platform",
	Long:  "Disconnect one account by id. Without an id every account of the platform is removed together with its comments.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := social.ParsePlatform(args[0])
		if err != nil {
			return err
		}
		var accountID string
		if len(args) > 1 {
			accountID = args[1]
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.svc.DisconnectPlatform(p, accountID)
		if err != nil {
			return err
		}
		fmt.Println(res.Message)
		return nil
	},
}

// --- sync / watch ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch new comments from every connected account",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if len(a.svc.ConnectedPlatforms()) == 0 {
			fmt.Println("No platforms connected. Add one with: supernova connect")
			return nil
		}

		fmt.Println("Syncing comments...")
		res, err := a.svc.SyncAll(cmd.Context())
		if err != nil {
			return err
		}
		printSync(res)
		return nil
	},
}

func printSync(res *aggregate.SyncResult) {
	fmt.Printf("\nSync complete in %s:\n", res.Duration.Round(time.Millisecond))
	fmt.Printf("  Fetched: %d\n", res.Fetched)
	fmt.Printf("  New: %d\n", res.Added)
	for _, p := range social.Platforms {
		pr, ok := res.Platforms[p]
		if !ok {
			continue
		}
		fmt.Printf("  %s: %d fetched, %d new from %d accounts\n", p.Title(), pr.Fetched, pr.Added, pr.Accounts)
		for _, f := range pr.Failures {
			fmt.Printf("    %s: %s\n", f.AccountName, f.Error)
		}
		if len(pr.Failures) == 0 && pr.Error != "" {
			fmt.Printf("    error: %s\n", pr.Error)
		}
	}
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync now and then on the auto refresh interval until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if res, err := a.svc.SyncAll(ctx); err != nil {
			fmt.Printf("Initial sync failed: %v\n", err)
		} else {
			printSync(res)
		}

		interval := a.svc.Settings().RefreshInterval()
		if interval <= 0 {
			fmt.Println("\nAuto refresh is off. Enable it with: supernova settings --auto-refresh 60000")
		} else {
			fmt.Printf("\nRefreshing every %s. Press Ctrl+C to stop\n", interval)
		}
		runner := &refresh.Runner{
			Syncer:   a.svc,
			Interval: func() time.Duration { return a.svc.Settings().RefreshInterval() },
			Logger:   a.logger.Named("refresh"),
		}
		if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

// --- comments / reply / handled ---

var (
	listFilter aggregate.Filter
	listJSON   bool
)

var commentsCmd = &cobra.Command{
	Use:   "comments",
	Short: "List stored comments, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		f := listFilter
		if f.Platform != "" {
			p, err := social.ParsePlatform(string(f.Platform))
			if err != nil {
				return err
			}
			f.Platform = p
		}
		comments := a.svc.Comments(f)
		if listJSON {
			return writeJSON(os.Stdout, comments)
		}
		if len(comments) == 0 {
			fmt.Println("No comments match. Run: supernova sync")
			return nil
		}
		for _, c := range comments {
			mark := " "
			if c.Responded {
				mark = "x"
			}
			author := c.Author
			if author == "" {
				author = "Anonymous"
			}
			fmt.Printf("[%s] %s  %-9s %-6s %-9s %s\n", mark, c.ID, c.Platform, c.Priority, c.Category,
				c.Timestamp.Local().Format("2006-01-02 15:04"))
			fmt.Printf("      %s: %s\n", author, oneLine(c.Text, 100))
		}
		return nil
	},
}

func init() {
	f := commentsCmd.Flags()
	f.StringVar((*string)(&listFilter.Platform), "platform", "", "Only this platform")
	f.StringVar((*string)(&listFilter.Category), "category", "", "refunds, questions, feedback or general")
	f.StringVar((*string)(&listFilter.Priority), "priority", "", "high, medium or low")
	f.StringVar(&listFilter.Status, "status", "", "responded or unresponded")
	f.StringVarP(&listFilter.Query, "query", "q", "", "Match text or author")
	f.IntVarP(&listFilter.Limit, "limit", "n", 50, "Maximum comments to show (0 for all)")
	f.BoolVar(&listJSON, "json", false, "Print JSON")
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > max {
		return string(r[:max]) + "..."
	}
	return s
}

var replyTemplate string

var replyCmd = &cobra.Command{
	Use:   "reply [comment-id] [text]",
	Short: "Reply to a comment through the account that received it",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var text string
		switch {
		case replyTemplate != "":
			text, err = a.svc.ReplyTemplate(replyTemplate)
			if err != nil {
				return err
			}
		case len(args) == 2:
			text = args[1]
		default:
			return fmt.Errorf("reply text or --template is required")
		}

		res, err := a.svc.ReplyToComment(cmd.Context(), args[0], text)
		if err != nil {
			return err
		}
		if !res.Delivered {
			fmt.Println("Warning:", res.Warning)
			return nil
		}
		fmt.Printf("Reply sent via %s.\n", res.AccountID)
		return nil
	},
}

func init() {
	replyCmd.Flags().StringVarP(&replyTemplate, "template", "t", "", "Use a canned reply: thanks, sorry or help")
}

var handledCmd = &cobra.Command{
	Use:   "handled [comment-id]",
	Short: "Mark a comment as responded without replying",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.svc.MarkHandled(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Marked %s as handled.\n", c.ID)
		return nil
	},
}

// --- export / report ---

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export comments, platform status and settings as JSON (no secrets)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		snap := a.svc.ExportSnapshot()
		if exportOutput == "" || exportOutput == "-" {
			return writeJSON(os.Stdout, snap)
		}
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("creating export file: %w", err)
		}
		if err := writeJSON(f, snap); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("writing export file: %w", err)
		}
		fmt.Printf("Exported %d comments to %s\n", len(snap.Comments), exportOutput)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to file instead of stdout")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var reportLimit int

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a markdown digest of the inbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		snap := a.svc.ExportSnapshot()
		digest := report.Compose(report.Input{
			Comments:    snap.Comments,
			Stats:       snap.Stats,
			Platforms:   snap.Platforms,
			GeneratedAt: time.Now(),
			Limit:       reportLimit,
		})
		fmt.Print(digest.Markdown())
		return nil
	},
}

func init() {
	reportCmd.Flags().IntVarP(&reportLimit, "limit", "n", 10, "Comments listed under Needs attention")
}

// --- settings / clear ---

var (
	settingsAutoRefresh int
	settingsSound       string
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change auto refresh and notification settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		s := a.svc.Settings()
		changed := false
		if cmd.Flags().Changed("auto-refresh") {
			s.AutoRefresh = settingsAutoRefresh
			changed = true
		}
		if cmd.Flags().Changed("sound") {
			s.NotificationSound = settingsSound
			changed = true
		}
		if changed {
			if s, err = a.svc.UpdateSettings(s); err != nil {
				return err
			}
			fmt.Println("Settings saved.")
		}
		fmt.Printf("Auto refresh: %d ms\n", s.AutoRefresh)
		fmt.Printf("Notification sound: %s\n", s.NotificationSound)
		return nil
	},
}

func init() {
	settingsCmd.Flags().IntVar(&settingsAutoRefresh, "auto-refresh", 0, "Sync interval in milliseconds, 0 turns it off")
	settingsCmd.Flags().StringVar(&settingsSound, "sound", "", "default, chime or none")
}

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every account, comment, setting and reply log entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !clearYes {
			fmt.Print("This removes all local Supernova data. Continue? [y/N]: ")
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			answer = strings.TrimSpace(strings.ToLower(answer))
			if answer != "y" && answer != "yes" {
				return fmt.Errorf("aborted")
			}
		}
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.svc.ClearAllState(); err != nil {
			return err
		}
		fmt.Println("All local data cleared.")
		return nil
	},
}

func init() {
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "Do not ask for confirmation")
}

// --- serve command ---

var (
	servePort      int
	serveNoRefresh bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local dashboard API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return server.Serve(ctx, a.svc, port, a.logger.Named("server"))
		})
		if !serveNoRefresh {
			runner := &refresh.Runner{
				Syncer:   a.svc,
				Interval: func() time.Duration { return a.svc.Settings().RefreshInterval() },
				Logger:   a.logger.Named("refresh"),
			}
			g.Go(func() error {
				if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
					return err
				}
				return nil
			})
		}
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
	serveCmd.Flags().BoolVar(&serveNoRefresh, "no-refresh", false, "Do not sync on the auto refresh interval")
}
