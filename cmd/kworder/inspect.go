package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chazu/kworder/pkg/catalog"
	"github.com/chazu/kworder/pkg/framedump"
	"github.com/chazu/kworder/pkg/inspect"
)

func readDump(path string) (*framedump.Dump, error) {
	d, err := framedump.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if d.Procedure == "" {
		d.Procedure = filepath.Base(path)
	}
	return d, nil
}

func newDisasmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "disasm file.cbor",
		Short: "Print the decoded instruction listing of a frame dump",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := readDump(args[0])
			if err != nil {
				return err
			}
			listing, err := a.extractor.Disassemble(d.Frame())
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Fprint(cmd.OutOrStdout(), highlightListing(listing))
			return nil
		},
	}
}

func newNamesCmd(a *app) *cobra.Command {
	var (
		offset int
		format string
		cached bool
	)
	cmd := &cobra.Command{
		Use:   "names file.cbor",
		Short: "Recover the keyword names passed at one call site",
		Long:  `Names reports the keyword names of the call at the dump's captured offset, or at --offset, in source order.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := readDump(args[0])
			if err != nil {
				return err
			}
			f := d.Frame()
			if offset >= 0 {
				f.Offset = offset
			} else if !d.HasOffset() {
				return fmt.Errorf("%s was captured outside a call; pass --offset", args[0])
			}

			names, err := a.names(f, cached)
			if err != nil {
				return err
			}
			return writeReports(cmd.OutOrStdout(), format, []siteReport{{Procedure: f.Procedure, Offset: f.Offset, Names: names}})
		},
	}
	cmd.Flags().IntVar(&offset, "offset", -1, "call instruction offset (default: the dump's captured offset)")
	cmd.Flags().StringVar(&format, "format", "text", "output format (text|yaml)")
	cmd.Flags().BoolVar(&cached, "cached", false, "answer from the catalog when it holds a current row")
	return cmd
}

func (a *app) names(f inspect.Frame, cached bool) ([]string, error) {
	if !cached {
		return a.extractor.KeywordNames(f)
	}
	cat, err := catalog.Open(a.manifest.CatalogPath())
	if err != nil {
		return nil, err
	}
	defer cat.Close()

	digest, err := inspect.FrameDigest(f.Code, f.Consts)
	if err != nil {
		return nil, err
	}
	names, err := cat.Lookup(f.Procedure, f.Offset, digest)
	if err == nil {
		a.log.Debugf("catalog hit for %s@%d", f.Procedure, f.Offset)
		return names, nil
	}
	if !errors.Is(err, catalog.ErrSiteNotFound) {
		return nil, err
	}
	return a.extractor.KeywordNames(f)
}

func newScanCmd(a *app) *cobra.Command {
	var (
		format string
		record bool
	)
	cmd := &cobra.Command{
		Use:   "scan file.cbor...",
		Short: "Recover keyword names at every call site of one or more frame dumps",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cat *catalog.Catalog
			if record {
				var err error
				if cat, err = catalog.Open(a.manifest.CatalogPath()); err != nil {
					return err
				}
				defer cat.Close()
			}

			var reports []siteReport
			for _, path := range args {
				d, err := readDump(path)
				if err != nil {
					return err
				}
				f := d.Frame()
				results, err := a.extractor.Scan(f)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if cat != nil {
					digest, err := inspect.FrameDigest(f.Code, f.Consts)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					if err := cat.Record(f.Procedure, digest, results); err != nil {
						return err
					}
				}
				for _, r := range results {
					reports = append(reports, newSiteReport(f.Procedure, r))
				}
			}
			if a.cache != nil {
				stats := a.cache.Stats()
				a.log.Debugf("decode cache: %d hits, %d misses, %d entries", stats.Hits, stats.Misses, stats.Entries)
			}
			return writeReports(cmd.OutOrStdout(), format, reports)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format (text|yaml)")
	cmd.Flags().BoolVar(&record, "record", false, "store the results in the catalog")
	return cmd
}
