package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/recall/internal/profile"
	"github.com/hrygo/recall/server"
	"github.com/hrygo/recall/store"
	"github.com/hrygo/recall/store/db"
)

const version = "0.1.0"

var (
	rootCmd = &cobra.Command{
		Use:   "recall",
		Short: `A spaced-repetition scheduling service.`,
		Run: func(_ *cobra.Command, _ []string) {
			instanceProfile, err := loadProfile()
			if err != nil {
				slog.Error("failed to load profile", "error", err)
				os.Exit(1)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			storeInstance, err := openStore(ctx, instanceProfile)
			if err != nil {
				slog.Error("failed to open store", "error", err)
				os.Exit(1)
			}

			s, err := server.NewServer(ctx, instanceProfile, storeInstance)
			if err != nil {
				slog.Error("failed to create server", "error", err)
				os.Exit(1)
			}

			c := make(chan os.Signal, 1)
			// Trigger graceful shutdown on SIGINT or SIGTERM.
			// The default signal sent by the `kill` command is SIGTERM,
			// which is taken as the graceful shutdown signal for many systems, eg., Kubernetes, Gunicorn.
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)

			if err := s.Start(ctx); err != nil {
				slog.Error("failed to start server", "error", err)
				os.Exit(1)
			}
			printGreetings(instanceProfile)

			go func() {
				<-c
				s.Shutdown(ctx)
				cancel()
			}()

			// Wait for CTRL-C.
			<-ctx.Done()
		},
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			instanceProfile, err := loadProfile()
			if err != nil {
				return err
			}
			storeInstance, err := openStore(cmd.Context(), instanceProfile)
			if err != nil {
				return err
			}
			defer storeInstance.Close()
			schemaVersion, err := storeInstance.GetCurrentSchemaVersion()
			if err != nil {
				return err
			}
			fmt.Printf("schema is at version %d\n", schemaVersion)
			return nil
		},
	}

	recomputeCmd = &cobra.Command{
		Use:   "recompute",
		Short: "Run the statistics and retention jobs once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			instanceProfile, err := loadProfile()
			if err != nil {
				return err
			}
			storeInstance, err := openStore(cmd.Context(), instanceProfile)
			if err != nil {
				return err
			}
			defer storeInstance.Close()

			s, err := server.NewServer(cmd.Context(), instanceProfile, storeInstance)
			if err != nil {
				return err
			}
			counters, err := s.Aggregator.RecomputeAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("statistics: %d users, %d items, %d due\n", counters.Users, counters.Total, counters.DueNow)

			if viper.GetBool("skip-retention") {
				return nil
			}
			result, err := s.Optimizer.Apply(cmd.Context(), instanceProfile.RetentionWindowDays)
			if err != nil {
				return err
			}
			fmt.Printf("retention: %d users evaluated, %d adjusted\n", result.Evaluated, len(result.Recommendations))
			return nil
		},
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8081)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver, sqlite or postgres")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka. DSN)")
	recomputeCmd.Flags().Bool("skip-retention", false, "only recompute statistics")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}
	if err := viper.BindPFlag("skip-retention", recomputeCmd.Flags().Lookup("skip-retention")); err != nil {
		panic(err)
	}

	viper.SetEnvPrefix("recall")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(migrateCmd, recomputeCmd)
}

func loadProfile() (*profile.Profile, error) {
	instanceProfile := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Addr:    viper.GetString("addr"),
		Port:    viper.GetInt("port"),
		Data:    viper.GetString("data"),
		Driver:  viper.GetString("driver"),
		DSN:     viper.GetString("dsn"),
		Version: version,
	}
	instanceProfile.FromEnv()
	if err := instanceProfile.Validate(); err != nil {
		return nil, err
	}
	return instanceProfile, nil
}

// openStore connects to the database and applies pending migrations.
func openStore(ctx context.Context, instanceProfile *profile.Profile) (*store.Store, error) {
	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		return nil, err
	}
	storeInstance, err := store.New(dbDriver, instanceProfile)
	if err != nil {
		dbDriver.Close()
		return nil, err
	}
	if err := storeInstance.Migrate(ctx); err != nil {
		storeInstance.Close()
		return nil, err
	}
	return storeInstance, nil
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("Recall %s started successfully!\n", p.Version)
	if p.IsDev() {
		fmt.Fprintf(os.Stderr, "Development mode is enabled\n")
		fmt.Fprintf(os.Stderr, "Database: %s (%s)\n", p.Driver, p.DSN)
	}
	if len(p.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", p.Port)
		fmt.Printf("Access at: http://localhost:%d\n", p.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", p.Addr, p.Port)
	}
	fmt.Printf("Statistics: %s, retention: %s\n", p.StatsCron, p.RetentionCron)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
