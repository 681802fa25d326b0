package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"bbkernel/internal/apperr"
	"bbkernel/internal/container"
)

func newContainerCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "container",
		Short: "Compile, inspect and clear the container dump",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("container requires a subcommand: dump|show|clear")
		},
	}

	var force bool
	dump := &cobra.Command{
		Use:     "dump",
		Short:   "Boot once so the compiled container is written to disk",
		Example: "  bbkernel container dump --force",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Debug {
				return apperr.New(apperr.CodeInvalidArgument, "debug mode never writes the container dump")
			}
			if force {
				if err := os.Remove(cfg.DumpPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
					return apperr.Wrap(apperr.CodeDirectoryWritable, err, "remove "+cfg.DumpPath())
				}
			}
			app, _, release, err := opts.boot(cmd)
			if err != nil {
				return err
			}
			defer release()
			state := "compiled"
			if app.Container().IsRestored() {
				state = "restored"
			}
			fmt.Fprintf(opts.stdout, "%s %s\n", state, app.DumpPath())
			return nil
		},
	}
	dump.Flags().BoolVar(&force, "force", false, "Discard an existing dump and recompile")

	var asJSON bool
	show := &cobra.Command{
		Use:   "show",
		Short: "List the services recorded in the container dump",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			b, err := os.ReadFile(cfg.DumpPath())
			if err != nil {
				return apperr.Wrap(apperr.CodeInvalidDump, err, "read container dump")
			}
			d, err := container.DecodeDump(b)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(opts.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(d)
			}
			return printDump(opts, d)
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "Print the raw dump")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the container dump so the next boot rebuilds it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			err = os.Remove(cfg.DumpPath())
			switch {
			case errors.Is(err, os.ErrNotExist):
				fmt.Fprintln(opts.stdout, "no dump at", cfg.DumpPath())
				return nil
			case err != nil:
				return apperr.Wrap(apperr.CodeDirectoryWritable, err, "remove "+cfg.DumpPath())
			}
			fmt.Fprintln(opts.stdout, "removed", cfg.DumpPath())
			return nil
		},
	}

	cmd.AddCommand(dump, show, clearCmd)
	return cmd
}

func printDump(opts *globalOptions, d *container.Dump) error {
	fmt.Fprintf(opts.stdout, "build %s created %s\n", d.BuildID, d.CreatedAt.Format("2006-01-02 15:04:05Z07:00"))
	ids := make([]string, 0, len(d.Services))
	for id := range d.Services {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	tw := tabwriter.NewWriter(opts.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSCOPE\tTAGS\tSNAPSHOT")
	for _, id := range ids {
		def := d.Services[id]
		tags := make([]string, 0, len(def.Tags))
		for _, t := range def.Tags {
			tags = append(tags, t.Name())
		}
		_, snap := d.Snapshots[id]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", id, def.Kind, def.Scope, strings.Join(tags, ","), snap)
	}
	return tw.Flush()
}
