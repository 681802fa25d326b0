package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"bbkernel/internal/apperr"
	"bbkernel/internal/config"
)

func newConfigCmd(opts *globalOptions) *cobra.Command {
	var (
		root  string
		scope config.Scope
	)
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and persist bundle configuration overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("config requires a subcommand: persist|show|validate")
		},
	}
	cmd.PersistentFlags().StringVar(&root, "root", "", "Bundle configuration root (defaults to config bundle_config_dir)")
	cmd.PersistentFlags().StringVar(&scope.Context, "context", "", "Context segment of the bundle path")
	cmd.PersistentFlags().StringVar(&scope.Environment, "env", "", "Environment segment of the bundle path")

	persistor := func(c *cobra.Command) (*config.Persistor, error) {
		if root == "" {
			cfg, err := opts.loadConfig(c)
			if err != nil {
				return nil, err
			}
			root = cfg.BundleConfigDir
		}
		if root == "" {
			return nil, apperr.New(apperr.CodeMissingParameter, "no bundle configuration root: pass --root or set bundle_config_dir")
		}
		return config.NewPersistor(root), nil
	}

	persist := &cobra.Command{
		Use:     "persist BUNDLE KEY=VALUE...",
		Short:   "Write BUNDLE's config.yml, replacing its previous content",
		Example: "  bbkernel config persist page --env prod cache.ttl=300 title='My site'",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := persistor(cmd)
			if err != nil {
				return err
			}
			values, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			scope.Bundle = args[0]
			path, err := p.Persist(scope, values)
			if err != nil {
				return err
			}
			fmt.Fprintln(opts.stdout, path)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show BUNDLE",
		Short: "Print BUNDLE's persisted configuration as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := persistor(cmd)
			if err != nil {
				return err
			}
			scope.Bundle = args[0]
			values, err := p.Read(scope)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(opts.stdout)
			enc.SetIndent(2)
			if err := enc.Encode(values); err != nil {
				return apperr.Wrap(apperr.CodeBundleConfigRead, err, "encode")
			}
			return enc.Close()
		},
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the kernel configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintf(opts.stdout, "ok: addr=%s dump=%s debug=%t\n", cfg.Addr, cfg.DumpPath(), cfg.Debug)
			return nil
		},
	}

	cmd.AddCommand(persist, show, validate)
	return cmd
}

// parseAssignments turns KEY=VALUE pairs into a map. Dotted keys nest and
// values are decoded as YAML scalars, so numbers and booleans keep their type.
func parseAssignments(args []string) (map[string]any, error) {
	out := map[string]any{}
	for _, a := range args {
		key, raw, ok := strings.Cut(a, "=")
		if !ok || key == "" {
			return nil, apperr.Newf(apperr.CodeInvalidArgument, "expected KEY=VALUE, got %q", a)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		parts := strings.Split(key, ".")
		m := out
		for _, p := range parts[:len(parts)-1] {
			child, ok := m[p].(map[string]any)
			if !ok {
				child = map[string]any{}
				m[p] = child
			}
			m = child
		}
		m[parts[len(parts)-1]] = v
	}
	return out, nil
}
