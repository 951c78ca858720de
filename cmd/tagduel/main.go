package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mweiss/tagduel/internal/overpass"
)

type config struct {
	Relay    string `toml:"relay"`
	Name     string `toml:"name"`
	Region   string `toml:"region"`
	Overpass string `toml:"overpass"`
}

var (
	cfg      config
	cfgPath  string
	verbose  bool
	flagOnly config // flag values, applied over the file
)

func main() {
	root := &cobra.Command{
		Use:   "tagduel",
		Short: "Two-player map tag duel over a direct peer channel",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig()
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.config/tagduel.toml)")
	root.PersistentFlags().StringVar(&flagOnly.Relay, "relay", "", "rendezvous relay base URL")
	root.PersistentFlags().StringVar(&flagOnly.Name, "name", "", "player name")
	root.PersistentFlags().StringVar(&flagOnly.Region, "region", "", "region the tag pool is scoped to")
	root.PersistentFlags().StringVar(&flagOnly.Overpass, "overpass", "", "count oracle endpoint")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(hostCmd(), joinCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() error {
	cfg = config{
		Relay:    "http://localhost:8090",
		Name:     "anonymous",
		Region:   "Berlin",
		Overpass: overpass.DefaultEndpoint,
	}

	path := cfgPath
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".config", "tagduel.toml")
		}
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if cfgPath != "" || !os.IsNotExist(err) {
				return fmt.Errorf("config %s: %w", path, err)
			}
		}
	}

	if flagOnly.Relay != "" {
		cfg.Relay = flagOnly.Relay
	}
	if flagOnly.Name != "" {
		cfg.Name = flagOnly.Name
	}
	if flagOnly.Region != "" {
		cfg.Region = flagOnly.Region
	}
	if flagOnly.Overpass != "" {
		cfg.Overpass = flagOnly.Overpass
	}
	return nil
}

func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
