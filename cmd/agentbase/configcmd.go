package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/agentbase/config"
	"github.com/BaSui01/agentbase/factory"
)

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir]",
		Short: "Write the default configuration to dir/default.yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := defaultConfigPath
			if len(args) == 1 {
				dir = args[0]
			}
			path, created, err := config.WriteDefaultConfigFile(dir)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists, left unchanged\n", path)
			}
			return nil
		},
	}
}

// configDir --config 指向文件时取其所在目录
func configDir(path string) string {
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return filepath.Dir(path)
	}
	return path
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration (environment > YAML > defaults)",
	}

	chain := func() (config.Provider, error) {
		return factory.NewDefault().CreateConfigChain(configDir(opts.configPath), config.DefaultEnvPrefix)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print the value at a dotted key, e.g. llm.model",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := chain()
				if err != nil {
					return err
				}
				key := args[0]
				if !p.Has(key) {
					if section := p.Section(key); len(section) > 0 {
						return printValue(cmd, section)
					}
					return fmt.Errorf("config key %q not found", key)
				}
				return printValue(cmd, p.Get(key, nil))
			},
		},
		&cobra.Command{
			Use:   "keys [prefix]",
			Short: "List known dotted keys",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := chain()
				if err != nil {
					return err
				}
				prefix := ""
				if len(args) == 1 {
					prefix = args[0]
				}
				for _, k := range p.Keys(prefix) {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			},
		},
	)
	return cmd
}

// printValue 标量原样输出，map/切片输出为 YAML
func printValue(cmd *cobra.Command, v any) error {
	switch v.(type) {
	case map[string]any, []any:
		out, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))
	default:
		fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(fmt.Sprint(v)))
	}
	return nil
}
