package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"bbkernel/internal/apperr"
)

func newSequenceCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sequence",
		Short: "Read and advance named sequences",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("sequence requires a subcommand: next|raise|current")
		},
	}

	var def int64
	next := &cobra.Command{
		Use:     "next NAME",
		Short:   "Increment a sequence and print the new value",
		Example: "  bbkernel sequence next invoice --default 1000",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, release, err := opts.boot(cmd)
			if err != nil {
				return err
			}
			defer release()
			v, err := app.NextSequence(cmd.Context(), args[0], def)
			if err != nil {
				return err
			}
			fmt.Fprintln(opts.stdout, v.Value)
			return nil
		},
	}
	next.Flags().Int64Var(&def, "default", 1, "Value of a sequence that does not exist yet")

	raise := &cobra.Command{
		Use:   "raise NAME VALUE",
		Short: "Raise a sequence to at least VALUE",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return apperr.Wrap(apperr.CodeInvalidArgument, err, "VALUE must be an integer")
			}
			app, _, release, err := opts.boot(cmd)
			if err != nil {
				return err
			}
			defer release()
			v, err := app.RaiseSequence(cmd.Context(), args[0], value)
			if err != nil {
				return err
			}
			fmt.Fprintln(opts.stdout, v.Value)
			return nil
		},
	}

	current := &cobra.Command{
		Use:   "current NAME",
		Short: "Print the current value of a sequence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, release, err := opts.boot(cmd)
			if err != nil {
				return err
			}
			defer release()
			s, err := app.Sequencer()
			if err != nil {
				return err
			}
			v, err := s.Current(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(opts.stdout, v)
			return nil
		},
	}

	cmd.AddCommand(next, raise, current)
	return cmd
}
