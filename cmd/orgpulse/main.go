package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"orgpulse/config"
	"orgpulse/internal/llm"
	"orgpulse/internal/server"
	"orgpulse/internal/store"
)

func main() {
	var configPath string

	root := &cobra.Command{Use: "orgpulse"}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config directory")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(configPath)
			if cfg.LLM.APIKey == "" {
				log.Printf("warning: no LLM api key configured, pipeline calls will fail")
			}
			srv, err := server.New(cfg, llm.NewClient(cfg.LLM))
			if err != nil {
				return err
			}
			defer srv.Close()
			return srv.Run()
		},
	}

	seed := &cobra.Command{
		Use:   "seed",
		Short: "Write the demo signal into an empty data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(configPath)
			st, err := store.New(cfg.General.DataDir)
			if err != nil {
				return err
			}
			signals, err := st.Signals()
			if err != nil {
				return err
			}
			if len(signals) > 0 {
				fmt.Printf("data directory already holds %d signals, nothing to do\n", len(signals))
				return nil
			}
			return server.SeedDemo(st)
		},
	}

	compact := &cobra.Command{
		Use:   "compact",
		Short: "Compact the signal and state files in place",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(configPath)
			st, err := store.New(cfg.General.DataDir)
			if err != nil {
				return err
			}
			return st.Compact()
		},
	}

	root.AddCommand(serve, seed, compact)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
