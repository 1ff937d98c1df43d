package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentcore-dev/agentcore"
)

// Version is set via ldflags.
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "agentcore",
		Short: "Orchestration core for the multi-agent platform",
	}

	var configFile string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestration core",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Printf("Starting agentcore v%s", Version)
			if configFile != "" {
				log.Printf("Config: %s", configFile)
			}
			return agentcore.Run(configFile)
		},
	}
	serve.Flags().StringVarP(&configFile, "config", "c", os.Getenv("AGENTCORE_CONFIG"), "configuration file")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	}

	root.AddCommand(serve, version)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
