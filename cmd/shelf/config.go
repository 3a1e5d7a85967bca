package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/bibshelf/internal/config"
)

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and change settings",
	Long: `Read and change settings stored in the settings file. Environment
variables (BIBSHELF_*) override the file but are never written back.`,
}

// Setting is one key and its value.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := loadSettings()
		v, err := s.Get(args[0])
		if err != nil {
			exitWithError(ExitConfigError, "%v", err)
		}
		if humanOutput {
			outputHuman("%s\n", v)
			return nil
		}
		return outputJSON(Setting{Key: args[0], Value: v})
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Environment overrides must not leak into the file.
		path := configPath()
		s, err := config.LoadFile(path)
		if err != nil {
			exitWithError(ExitConfigError, "loading config: %v", err)
		}
		if err := s.Set(args[0], args[1]); err != nil {
			exitWithError(ExitConfigError, "%v", err)
		}
		if err := s.Validate(); err != nil {
			exitWithError(ExitConfigError, "%v", err)
		}
		if err := s.Save(path); err != nil {
			fail(err, "saving config")
		}
		if humanOutput {
			outputHuman("%s = %s\n", args[0], args[1])
			return nil
		}
		return outputJSON(Setting{Key: args[0], Value: args[1]})
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every setting",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := loadSettings()
		out := make([]Setting, 0, len(config.Keys()))
		for _, k := range config.Keys() {
			v, _ := s.Get(k)
			out = append(out, Setting{Key: k, Value: v})
		}
		if humanOutput {
			for _, kv := range out {
				outputHuman("%-34s %s\n", kv.Key, kv.Value)
			}
			return nil
		}
		return outputJSON(out)
	},
}
