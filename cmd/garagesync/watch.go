package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-garage-sync/listsync"
	"github.com/goliatone/go-garage-sync/resources"
)

func newWatchCmd(build containerFactory) *cobra.Command {
	flags := &queryFlags{}

	cmd := &cobra.Command{
		Use:       "watch <resource>",
		Short:     "Keep a resource page up to date and print every change",
		Long:      "Fetches the page, refetches it every TTL and on realtime events, and prints it whenever it changes. Stops on interrupt.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: resources.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd, build, args[0], flags)
		},
	}
	flags.bind(cmd)
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, build containerFactory, name string, flags *queryFlags) error {
	container, err := build(cmd)
	if err != nil {
		return err
	}
	defer container.Close()

	coord, err := container.NewCoordinator(name)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var mu sync.Mutex
	unwatch := coord.Watch(func(s listsync.State) {
		if s.Loading {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		printState(out, s, flags)
	})
	defer unwatch()

	container.Start(ctx)
	if _, err := coord.Fetch(ctx, flags.query()); err != nil && !errors.Is(err, listsync.ErrSuperseded) {
		return err
	}
	coord.Start(ctx)

	<-ctx.Done()
	return nil
}

func printState(w io.Writer, s listsync.State, flags *queryFlags) {
	if s.Err != "" {
		fmt.Fprintf(w, "error: %s\n", s.Err)
		return
	}
	fmt.Fprintf(w, "-- %s\n", s.UpdatedAt.Format("15:04:05"))
	if err := printSnapshot(w, s.Items, s.Page, flags); err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
	}
}
