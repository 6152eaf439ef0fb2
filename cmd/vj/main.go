package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vj-go/internal/app"
	"vj-go/internal/config"
	"vj-go/internal/vj"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var verbose bool

// loadConfig reads the config file named by the defaults.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp creates a VJApp from cfg. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Sync", "AddTag").
func newApp(cfg *config.Config, operation string) (*app.VJApp, error) {
	a, err := app.NewVJApp(cfg, operation, app.Options{Verbose: verbose})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// withApp loads the config, runs fn against a fresh app, and closes it.
func withApp(operation string, fn func(a *app.VJApp) error) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, operation)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(a)
}

var rootCmd = &cobra.Command{
	Use:          "vj",
	Short:        "Voice journal with two-way Dropbox sync",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := app.DefaultConfig()
		if err != nil {
			return err
		}
		if appKey, _ := cmd.Flags().GetString("app-key"); appKey != "" {
			cfg.Remote.AppKey = appKey
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		if cfg.Remote.AppKey == "" {
			fmt.Println("Set remote.app_key to your Dropbox app key, then run 'vj auth init' and 'vj auth login'.")
		}
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:      %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:       %s\n", cfg.LogDir)
		fmt.Printf("Audio Dir:     %s\n", cfg.AudioDir)
		fmt.Printf("Remote:        %s %s\n", cfg.Remote.Type, cfg.Remote.RootPath)
		fmt.Printf("Database:      %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Transcription: %s %s\n", cfg.Transcription.Type, cfg.Transcription.Endpoint)
		fmt.Printf("Missing tags:  %s\n", cfg.Sync.CreateMissingTags)
		fmt.Printf("Concurrency:   %d\n", cfg.Sync.Concurrency)
		if len(cfg.Sync.Ignore) > 0 {
			fmt.Printf("Ignore:        %s\n", strings.Join(cfg.Sync.Ignore, " "))
		}
		return nil
	},
}

// auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Dropbox credentials",
}

var authInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the key pair that seals the Dropbox token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("AuthInit", func(a *app.VJApp) error {
			pass, err := newPassphrase()
			if err != nil {
				return err
			}
			if err := a.AuthInit(pass); err != nil {
				return err
			}
			fmt.Println("Encryption keys created.")
			return nil
		})
	},
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize vj to access your Dropbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("AuthLogin", func(a *app.VJApp) error {
			if err := a.Login(cmd.Context(), readAuthCode); err != nil {
				return err
			}
			fmt.Println(successStyle.Render("Logged in to Dropbox."))
			return nil
		})
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a two-way sync with the remote folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		noCreate, _ := cmd.Flags().GetBool("no-create-tags")
		if yes && noCreate {
			return fmt.Errorf("--yes and --no-create-tags are mutually exclusive")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		switch {
		case yes:
			cfg.Sync.CreateMissingTags = config.CreateTagsAlways
		case noCreate:
			cfg.Sync.CreateMissingTags = config.CreateTagsNever
		}

		a, err := newApp(cfg, "Sync")
		if err != nil {
			return err
		}
		defer a.Close()

		opts := app.SyncOptions{
			Passphrase: readPassphrase,
			OnProgress: progressPrinter(),
		}
		if interactive() {
			opts.Confirm = confirmCreateTag
		}

		start := time.Now()
		report, err := a.Sync(cmd.Context(), opts)
		if err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render("Sync failed: "+err.Error()))
			return err
		}
		printReport(report, time.Since(start))
		return nil
	},
}

// progressPrinter prints a line each time another task finishes.
func progressPrinter() func(vj.State) {
	var mu sync.Mutex
	last := -1
	return func(s vj.State) {
		mu.Lock()
		defer mu.Unlock()
		if !s.Syncing || s.Progress.Total == 0 || s.Progress.Completed == last {
			return
		}
		last = s.Progress.Completed
		fmt.Fprintf(os.Stderr, "  %d/%d\n", s.Progress.Completed, s.Progress.Total)
	}
}

func printReport(r *vj.Report, elapsed time.Duration) {
	fmt.Printf("%s in %s: %d downloaded, %d refreshed, %d tagged, %d uploaded, %d transcribed\n",
		successStyle.Render("Sync complete"), elapsed.Truncate(time.Millisecond),
		r.Downloaded, r.Refreshed, r.TagUpdated, r.Uploaded, r.Transcribed)
	if r.Failed == 0 {
		return
	}
	fmt.Println(warnStyle.Render(fmt.Sprintf("%d task(s) failed; they will be retried on the next sync:", r.Failed)))
	for _, res := range r.Results {
		if res.Status != vj.TaskFailed {
			continue
		}
		target := res.Remote
		if target == "" {
			target = res.EncounterID
		}
		fmt.Printf("  %-10s %s: %v\n", res.Kind, target, res.Err)
	}
}

// recordings command
var recordingsCmd = &cobra.Command{
	Use:     "recordings",
	Aliases: []string{"rec"},
	Short:   "Manage local recordings",
}

var recordingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recordings, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("ListRecordings", func(a *app.VJApp) error {
			recs, err := a.ListRecordings(cmd.Context())
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Println("No recordings.")
				return nil
			}

			tags, err := a.ListTags(cmd.Context())
			if err != nil {
				return err
			}
			labels := make(map[string]string, len(tags))
			for _, t := range tags {
				labels[t.ID] = t.Label
			}

			for _, e := range recs {
				fmt.Println(formatRecording(e, labels, time.Now()))
			}
			return nil
		})
	},
}

var recordingsImportCmd = &cobra.Command{
	Use:   "import FILE...",
	Short: "Import audio files as recordings",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tags, _ := cmd.Flags().GetStringSlice("tag")
		return withApp("ImportRecording", func(a *app.VJApp) error {
			for _, p := range args {
				enc, err := a.ImportRecording(cmd.Context(), p, tags)
				if err != nil {
					return fmt.Errorf("importing %s: %w", p, err)
				}
				fmt.Printf("Imported %s as %s\n", p, enc.ID)
			}
			return nil
		})
	},
}

var recordingsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a recording and its local audio",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("DeleteRecording", func(a *app.VJApp) error {
			if err := a.DeleteRecording(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		})
	},
}

// tags command
var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Manage tags",
}

var tagsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tags",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("ListTags", func(a *app.VJApp) error {
			tags, err := a.ListTags(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range tags {
				kind := "predefined"
				if t.IsCustom {
					kind = "custom"
				}
				fmt.Printf("%-38s  %-20s  %s\n", t.ID, t.Label, kind)
			}
			return nil
		})
	},
}

var tagsAddCmd = &cobra.Command{
	Use:   "add LABEL",
	Short: "Create a custom tag",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("AddTag", func(a *app.VJApp) error {
			tag, err := a.AddTag(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Printf("Created tag %q (%s)\n", tag.Label, tag.ID)
			return nil
		})
	},
}

var tagsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a custom tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("DeleteTag", func(a *app.VJApp) error {
			return a.DeleteTag(cmd.Context(), args[0])
		})
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View sync history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp("History", func(a *app.VJApp) error {
			runs, err := a.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No syncs recorded.")
				return nil
			}
			for _, r := range runs {
				fmt.Println(formatRun(r, time.Now()))
			}
			return nil
		})
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the local database",
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup DEST",
	Short: "Write a copy of the database to DEST",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp("BackupDatabase", func(a *app.VJApp) error {
			dest, err := a.BackupDatabase(args[0])
			if err != nil {
				return err
			}
			if info, err := os.Stat(dest); err == nil {
				fmt.Printf("Database written to %s (%s)\n", dest, humanize.Bytes(uint64(info.Size())))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("app-key", "", "Dropbox app key")

	// auth subcommands
	authCmd.AddCommand(authInitCmd)
	authCmd.AddCommand(authLoginCmd)

	// recordings subcommands
	recordingsCmd.AddCommand(recordingsListCmd)
	recordingsCmd.AddCommand(recordingsImportCmd)
	recordingsCmd.AddCommand(recordingsDeleteCmd)
	recordingsImportCmd.Flags().StringSliceP("tag", "t", nil, "Tag label to attach (repeatable)")

	// tags subcommands
	tagsCmd.AddCommand(tagsListCmd)
	tagsCmd.AddCommand(tagsAddCmd)
	tagsCmd.AddCommand(tagsDeleteCmd)

	// db subcommands
	dbCmd.AddCommand(dbBackupCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().BoolP("yes", "y", false, "Create tags for unmatched folders without asking")
	syncCmd.Flags().Bool("no-create-tags", false, "Leave files in unmatched folders untagged")
	rootCmd.AddCommand(recordingsCmd)
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of syncs to show")
	rootCmd.AddCommand(dbCmd)
}
