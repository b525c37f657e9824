package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orchestre-dev/anthropic-bridge/internal/config"
)

// StatusCmd prints the effective configuration the bridge would run
// with, without starting a listener (spec.md §12 supplemented CLI
// surface).
func StatusCmd() *cobra.Command {
	var configPath string
	var asTOML bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				fmt.Printf("config error: %v\n", err)
				return err
			}

			if asTOML {
				out, err := config.Marshal(cfg)
				if err != nil {
					return err
				}
				fmt.Print(string(out))
				return nil
			}

			fmt.Println("abridge configuration")
			fmt.Println("---------------------")
			fmt.Printf("port:      %d\n", cfg.Port)
			fmt.Printf("provider:  %s\n", cfg.Provider.Name)
			fmt.Printf("base_url:  %s\n", cfg.Provider.BaseURL)
			fmt.Printf("format:    %s\n", cfg.Provider.Format)
			if len(cfg.Models) > 0 {
				fmt.Println("models:")
				for from, to := range cfg.Models {
					fmt.Printf("  %s -> %s\n", from, to)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "abridge.toml", "path to the TOML config file")
	cmd.Flags().BoolVar(&asTOML, "toml", false, "print the effective configuration as TOML instead of a summary")
	return cmd
}
