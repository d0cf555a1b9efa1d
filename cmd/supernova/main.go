package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/Supernova/internal/config"
	"github.com/TobiSchelling/Supernova/internal/social"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "supernova",
	Short:   "Unified inbox for Facebook, Instagram and YouTube comments",
	Long:    "Supernova connects Facebook Pages, Instagram Business accounts and YouTube channels, pulls their comments into one classified inbox and posts replies.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}
		if err := config.LoadDotEnv(); err != nil {
			return err
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			if configPath != "" {
				return err
			}
			cfg, err = config.Default()
			if err != nil {
				return fmt.Errorf("loading default config: %w", err)
			}
			return nil
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(commentsCmd)
	rootCmd.AddCommand(replyCmd)
	rootCmd.AddCommand(handledCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("supernova", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/supernova/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Then connect an account, e.g.: supernova connect facebook --token ... --id ...")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connected accounts and inbox statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Println("Platforms:")
		for _, p := range social.Platforms {
			st := a.svc.Status(p)
			if len(st.Accounts) == 0 {
				fmt.Printf("  %-10s not connected\n", p.Title())
				continue
			}
			fmt.Printf("  %-10s %d/%d accounts connected", p.Title(), st.AccountCount, len(st.Accounts))
			if st.LastSync != nil {
				fmt.Printf(", last sync %s", st.LastSync.Local().Format("2006-01-02 15:04"))
			}
			fmt.Println()
			for _, acct := range st.Accounts {
				state := "connected"
				if !acct.Connected {
					state = "disconnected, reconnect with a new token"
				}
				fmt.Printf("    [%s] %s (%s)\n", acct.ID, acct.Name, state)
			}
		}

		stats := a.svc.Stats()
		fmt.Println("\nComments:")
		fmt.Printf("  Total: %d\n", stats.Total)
		fmt.Printf("  Awaiting response: %d\n", stats.Unresponded)
		fmt.Printf("  High priority: %d\n", stats.HighPriority)
		fmt.Printf("  Average sentiment: %.2f\n", stats.AvgSentiment)

		dbStats, err := a.db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		fmt.Println("\nReplies:")
		fmt.Printf("  Sent: %d\n", dbStats.RepliesSent)
		fmt.Printf("  Not delivered: %d\n", dbStats.RepliesFailed)
		return nil
	},
}
