package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chazu/kworder/manifest"
	"github.com/chazu/kworder/pkg/catalog"
)

func newCatalogCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the recorded call-site catalog",
	}

	var format string
	list := &cobra.Command{
		Use:   "list",
		Short: "List every recorded call site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Open(a.manifest.CatalogPath())
			if err != nil {
				return err
			}
			defer cat.Close()

			entries, err := cat.List()
			if err != nil {
				return err
			}
			reports := make([]siteReport, 0, len(entries))
			for _, e := range entries {
				reports = append(reports, siteReport{Procedure: e.Procedure, Offset: e.Offset, Names: e.Names, Error: e.Error})
			}
			return writeReports(cmd.OutOrStdout(), format, reports)
		},
	}
	list.Flags().StringVar(&format, "format", "text", "output format (text|yaml)")

	forget := &cobra.Command{
		Use:   "forget procedure...",
		Short: "Delete the recorded call sites of procedures",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Open(a.manifest.CatalogPath())
			if err != nil {
				return err
			}
			defer cat.Close()
			for _, p := range args {
				if err := cat.Forget(p); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.AddCommand(list, forget)
	return cmd
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a kworder.toml with default settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if err := manifest.Write(dir, manifest.Default(dir)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", manifest.FileName)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the kworder version",
		Args:  cobra.NoArgs,
		// Skip configuration loading.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kworder %s (cpython-2.7 bytecode)\n", Version)
		},
	}
}
