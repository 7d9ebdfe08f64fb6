package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/client"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/dynres"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/secrets"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/tracker"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "burrow",
	Short: "Burrow - Node tracker for the cluster resource manager",
	Long: `Burrow owns worker-node membership for the cluster: node agents
register, heartbeat, and unregister against it, and it validates them,
maintains liveness, and fans node state out to the rest of the resource
manager.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Burrow version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("tracker-addr", "127.0.0.1:8031", "Tracker API address for client commands")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(trackerCmd)
	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(adminCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func trackerClient() *client.Client {
	addr, _ := rootCmd.PersistentFlags().GetString("tracker-addr")
	return client.NewClient(addr)
}

// Tracker commands
var trackerCmd = &cobra.Command{
	Use:   "tracker",
	Short: "Run the node tracker service",
}

var trackerRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the node tracker",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		bindAddr, _ := cmd.Flags().GetString("bind-addr")
		dataDir, _ := cmd.Flags().GetString("data-dir")

		logger := log.WithComponent("main")

		cfg, err := config.Load(configPath, logger)
		if err != nil {
			return err
		}
		if bindAddr != "" {
			cfg.BindAddr = bindAddr
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		if cfg.RMVersion == "" {
			cfg.RMVersion = Version
		}

		return runTracker(cfg)
	},
}

func runTracker(cfg config.Config) error {
	logger := log.WithComponent("main")

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	// Admin-updated admission lists survive restarts; a stored document
	// wins over the file.
	runtime := config.NewRuntime(cfg, logger)
	if saved, err := store.LoadAdmission(); err != nil {
		return fmt.Errorf("failed to load admission config: %w", err)
	} else if saved != nil {
		runtime.UpdateAdmission(*saved)
	}

	dynamic, err := dynres.NewTable(store)
	if err != nil {
		return err
	}

	keys, err := secrets.NewManager(secrets.NewMemoryKeyStore(), cfg.NMKeyCacheTTL.Std())
	if err != nil {
		return fmt.Errorf("failed to initialize master keys: %w", err)
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	svc := tracker.New(tracker.Options{
		Config:           cfg,
		Runtime:          runtime,
		DynamicResources: dynamic,
		Events:           broker,
		ContainerKeys:    tracker.NewContainerTokenKeys(keys),
		NMKeys:           tracker.NewNMTokenKeys(keys),
		Version:          cfg.RMVersion,
	})
	svc.Start()
	defer svc.Stop()

	server := api.NewServer(cfg, svc, runtime, dynamic, keys, store)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.BindAddr)
	}()

	// Surface broker backlog to the metrics endpoint.
	depthStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.EventQueueDepth.Set(float64(broker.Depth()))
			case <-depthStop:
				return
			}
		}
	}()
	defer close(depthStop)

	logger.Info().
		Str("bind_addr", cfg.BindAddr).
		Int64("rm_identifier", svc.ClusterEpoch()).
		Str("rm_version", svc.Version()).
		Msg("Node tracker started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
	defer cancel()
	return server.Stop(ctx)
}

// Node commands
var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Inspect and manage tracked nodes",
}

var nodeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		nodes, err := trackerClient().ListNodes()
		if err != nil {
			return err
		}

		fmt.Printf("%-24s %-16s %-10s %-12s %-8s %s\n", "NODE", "STATE", "MEM(MiB)", "VCORES", "HTTP", "LAST PING")
		for _, n := range nodes {
			fmt.Printf("%-24s %-16s %-10d %-12d %-8d %s\n",
				n.NodeID, n.State, n.TotalCapability.MemoryMiB, n.TotalCapability.VCores,
				n.HTTPPort, n.LastPingAt.Format(time.RFC3339))
		}
		return nil
	},
}

var nodeDecommissionCmd = &cobra.Command{
	Use:   "decommission <host:port>",
	Short: "Mark a node as draining for decommission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := types.ParseNodeID(args[0])
		if err != nil {
			return fmt.Errorf("invalid node id: %w", err)
		}
		if err := trackerClient().DecommissionNode(id); err != nil {
			return err
		}
		fmt.Printf("Node %s draining\n", id)
		return nil
	},
}

// Admin commands
var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Update runtime tracker configuration",
}

var adminResourcesCmd = &cobra.Command{
	Use:   "resources <file>",
	Short: "Replace the dynamic resource table from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var entries []types.DynamicResourceEntry
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("failed to parse resource table: %w", err)
		}
		if err := trackerClient().UpdateDynamicResources(entries); err != nil {
			return err
		}
		fmt.Printf("Applied %d resource overrides\n", len(entries))
		return nil
	},
}

var adminAdmissionCmd = &cobra.Command{
	Use:   "admission <file>",
	Short: "Replace the admission configuration from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var adm config.AdmissionConfig
		if err := yaml.Unmarshal(data, &adm); err != nil {
			return fmt.Errorf("failed to parse admission config: %w", err)
		}
		if err := trackerClient().UpdateAdmission(adm); err != nil {
			return err
		}
		fmt.Println("Admission configuration applied")
		return nil
	},
}

var adminPacingCmd = &cobra.Command{
	Use:   "pacing <file>",
	Short: "Replace the heartbeat pacing configuration from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var pacing config.PacingConfig
		if err := yaml.Unmarshal(data, &pacing); err != nil {
			return fmt.Errorf("failed to parse pacing config: %w", err)
		}
		if err := trackerClient().UpdatePacing(pacing); err != nil {
			return err
		}
		fmt.Println("Pacing configuration applied")
		return nil
	},
}

var adminKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage master key rotation",
}

var adminKeysRollCmd = &cobra.Command{
	Use:   "roll <container-token|nm-token>",
	Short: "Stage the next master key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyID, err := trackerClient().RollKey(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Staged next %s key (id %d)\n", args[0], keyID)
		return nil
	},
}

var adminKeysActivateCmd = &cobra.Command{
	Use:   "activate <container-token|nm-token>",
	Short: "Promote the staged master key to current",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := trackerClient().ActivateKey(args[0]); err != nil {
			return err
		}
		fmt.Printf("Activated %s key\n", args[0])
		return nil
	},
}

func init() {
	trackerRunCmd.Flags().String("config", "", "Path to YAML configuration file")
	trackerRunCmd.Flags().String("bind-addr", "", "API bind address (overrides config)")
	trackerRunCmd.Flags().String("data-dir", "", "Data directory (overrides config)")
	trackerCmd.AddCommand(trackerRunCmd)

	nodeCmd.AddCommand(nodeListCmd)
	nodeCmd.AddCommand(nodeDecommissionCmd)

	adminKeysCmd.AddCommand(adminKeysRollCmd)
	adminKeysCmd.AddCommand(adminKeysActivateCmd)
	adminCmd.AddCommand(adminResourcesCmd)
	adminCmd.AddCommand(adminAdmissionCmd)
	adminCmd.AddCommand(adminPacingCmd)
	adminCmd.AddCommand(adminKeysCmd)
}
