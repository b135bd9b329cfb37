package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/speakstream/internal/config"
)

var (
	printConfig bool

	configCmd = &cobra.Command{
		Use:     "config",
		Hidden:  false,
		Short:   "Edit the speakstream config file",
		Long:    paragraph(fmt.Sprintf("\n%s the speakstream config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
		Example: paragraph("speakstream config\nspeakstream config --config path/to/config.yml\nspeakstream config --print"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if printConfig {
				b, err := config.Marshal(cfg)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(b)
				return err
			}

			if err := ensureConfigFile(); err != nil {
				return err
			}

			c, err := editor.Cmd("speakstream", configFile)
			if err != nil {
				return fmt.Errorf("unable to set config file: %w", err)
			}
			c.Stdin = os.Stdin
			c.Stdout = os.Stdout
			c.Stderr = os.Stderr
			if err := c.Run(); err != nil {
				return fmt.Errorf("unable to run command: %w", err)
			}

			fmt.Println("Wrote config file to:", configFile)
			return nil
		},
	}
)

func init() {
	configCmd.Flags().BoolVarP(&printConfig, "print", "p", false, "print the effective configuration instead of editing")
}

func ensureConfigFile() error {
	if used := viper.ConfigFileUsed(); used != "" && !rootCmd.PersistentFlags().Changed("config") {
		configFile = used
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
		return fmt.Errorf("unable create directory: %w", err)
	}
	if err := config.WriteDefault(configFile); err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}
	return nil
}
