package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-garage-sync/cache"
	"github.com/goliatone/go-garage-sync/listsync"
	"github.com/goliatone/go-garage-sync/pkg/di"
	"github.com/goliatone/go-garage-sync/resources"
)

type containerFactory func(cmd *cobra.Command) (*di.Container, error)

type queryFlags struct {
	page      int
	limit     int
	search    string
	status    string
	from      string
	to        string
	sortField string
	sortDir   string
	services  []string
	assignee  string
	asJSON    bool
	columns   []string
}

func (f *queryFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.IntVar(&f.page, "page", 1, "page number")
	fs.IntVar(&f.limit, "limit", 0, "page size, default depends on the resource")
	fs.StringVar(&f.search, "search", "", "free text search")
	fs.StringVar(&f.status, "status", "", "status filter, comma separated")
	fs.StringVar(&f.from, "from", "", "start of the date range")
	fs.StringVar(&f.to, "to", "", "end of the date range")
	fs.StringVar(&f.sortField, "sort", "", "sort field")
	fs.StringVar(&f.sortDir, "order", "", "sort direction, asc or desc")
	fs.StringSliceVar(&f.services, "service", nil, "service id filter, repeatable")
	fs.StringVar(&f.assignee, "assignee", "", "assignee id filter")
	fs.BoolVar(&f.asJSON, "json", false, "print one JSON record per line")
	fs.StringSliceVar(&f.columns, "columns", []string{"status"}, "record fields to show next to the id")
}

func (f *queryFlags) query() cache.QueryState {
	return cache.QueryState{
		Page:       f.page,
		Limit:      f.limit,
		Search:     f.search,
		Status:     f.status,
		From:       f.from,
		To:         f.to,
		SortField:  f.sortField,
		SortDir:    f.sortDir,
		ServiceIDs: f.services,
		AssigneeID: f.assignee,
	}
}

func newListCmd(build containerFactory) *cobra.Command {
	flags := &queryFlags{}

	cmd := &cobra.Command{
		Use:       "list <resource>",
		Short:     "Fetch one page of a resource",
		Args:      cobra.ExactArgs(1),
		ValidArgs: resources.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := build(cmd)
			if err != nil {
				return err
			}
			defer container.Close()

			coord, err := container.NewCoordinator(args[0])
			if err != nil {
				return err
			}

			snap, err := coord.Fetch(cmd.Context(), flags.query())
			if err != nil {
				return err
			}
			return printSnapshot(cmd.OutOrStdout(), snap.Items, snap.Page, flags)
		},
	}
	flags.bind(cmd)
	return cmd
}

func printSnapshot(w io.Writer, items []listsync.Item, page listsync.PageMeta, flags *queryFlags) error {
	if flags.asJSON {
		enc := json.NewEncoder(w)
		for _, it := range items {
			if err := enc.Encode(it.Raw); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := append([]string{"#", "ID"}, upper(flags.columns)...)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, it := range items {
		row := []string{fmt.Sprint(it.Seq), it.ID}
		for _, col := range flags.columns {
			row = append(row, it.Get(col).String())
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "page %d of %d, %d total\n", page.Page, page.TotalPages, page.TotalItems)
	return err
}

func upper(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(s)
	}
	return out
}

func newResourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resources",
		Short: "List the known resources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPATH\tPAGE SIZE\tTTL\tWRITABLE")
			for _, d := range resources.All() {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%t\n", d.Config.Name, d.Path, d.Config.Defaults.Limit, d.Config.TTL, d.Mutable)
			}
			return tw.Flush()
		},
	}
}
