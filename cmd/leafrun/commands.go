package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/five82/leafrun/internal/api"
	"github.com/five82/leafrun/internal/app"
	"github.com/five82/leafrun/internal/route"
	"github.com/five82/leafrun/internal/syncer"
)

// withRoute opens the runtime, probes connectivity and loads the route
// before calling fn. Load failures are passed to fn so commands that work
// without a route can still run.
func withRoute(ctx context.Context, fn func(rt *app.Runtime, loadErr error) error) error {
	rt, err := app.Open(runtimeOptions(false))
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	rt.Probe(ctx)
	rt.Controller.SetOnline(rt.Oracle.IsOnline())
	return fn(rt, rt.Controller.Load(ctx))
}

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show route progress, queued actions and connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRoute(cmd.Context(), func(rt *app.Runtime, loadErr error) error {
				printStatus(cmd.OutOrStdout(), rt, loadErr)
				return nil
			})
		},
	}
}

func printStatus(w io.Writer, rt *app.Runtime, loadErr error) {
	snap := rt.View.Snapshot()
	if loadErr != nil {
		fmt.Fprintf(w, "Route:        unavailable (%v)\n", loadErr)
	} else {
		source := "server"
		if snap.FromCache {
			source = "local cache"
		}
		prog := snap.Route.Progress()
		fmt.Fprintf(w, "Route:        #%d (%s)\n", snap.Route.ID, source)
		fmt.Fprintf(w, "Progress:     %d/%d points, %d leaflets (%.0f%%)\n",
			prog.Completed, prog.Total, prog.Leaflets, prog.Percent())
	}
	conn := "offline"
	if rt.Oracle.IsOnline() {
		conn = "online"
	}
	fmt.Fprintf(w, "Connectivity: %s\n", conn)
	fmt.Fprintf(w, "Queued:       %d action(s)\n", rt.Queue.Len())
	if last, ok := rt.Engine.LastSync(); ok {
		fmt.Fprintf(w, "Last sync:    %s\n", last.Local().Format(time.DateTime))
	} else {
		fmt.Fprintln(w, "Last sync:    never")
	}
}

func completeCommand() *cobra.Command {
	var photo string
	cmd := &cobra.Command{
		Use:   "complete <point-id> <leaflets>",
		Short: "Mark a point as completed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pointID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid point id %q", args[0])
			}
			return withRoute(cmd.Context(), func(rt *app.Runtime, loadErr error) error {
				if loadErr != nil {
					return loadErr
				}
				out, err := rt.Controller.CompletePoint(cmd.Context(), pointID, args[1], photo)
				if err != nil {
					return err
				}
				if out.Queued {
					fmt.Fprintf(cmd.OutOrStdout(), "Point %d saved offline; run `leafrun sync` when back online\n", pointID)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Point %d completed\n", pointID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&photo, "photo", "", "photo file name to attach")
	return cmd
}

func reportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Send the daily report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRoute(cmd.Context(), func(rt *app.Runtime, loadErr error) error {
				if loadErr != nil {
					return loadErr
				}
				out, err := rt.Controller.SendReport(cmd.Context())
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if out.Queued && rt.Oracle.IsOnline() {
					res, err := rt.Controller.Sync(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(w, "Report queued behind earlier actions; synced %d, %d remaining\n", res.Synced, rt.Queue.Len())
					return nil
				}
				if out.Queued {
					fmt.Fprintln(w, "Report saved offline; it will be sent on the next sync")
					return nil
				}
				printSummary(w, out.Summary)
				return nil
			})
		},
	}
}

func printSummary(w io.Writer, s *route.Summary) {
	if s == nil {
		fmt.Fprintln(w, "Report sent")
		return
	}
	fmt.Fprintf(w, "Report #%d sent\n", s.ReportID)
	if s.Promoter != "" {
		fmt.Fprintf(w, "  Promoter:  %s\n", s.Promoter)
	}
	if s.Date != "" {
		fmt.Fprintf(w, "  Date:      %s\n", s.Date)
	}
	fmt.Fprintf(w, "  Completed: %d/%d\n", s.Completed, s.Total)
	fmt.Fprintf(w, "  Leaflets:  %d\n", s.Leaflets)
}

func syncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Deliver queued actions now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRoute(cmd.Context(), func(rt *app.Runtime, _ error) error {
				w := cmd.OutOrStdout()
				res, err := rt.Controller.Sync(cmd.Context())
				switch {
				case errors.Is(err, syncer.ErrOffline):
					fmt.Fprintf(w, "Offline; %d action(s) remain queued\n", rt.Queue.Len())
					return nil
				case err != nil:
					return err
				}
				fmt.Fprintf(w, "Synced %d, failed %d, %d remaining\n", res.Synced, res.Failed, rt.Queue.Len())
				if res.Failed > 0 {
					return fmt.Errorf("%d action(s) could not be delivered", res.Failed)
				}
				return nil
			})
		},
	}
}

func optimizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "optimize",
		Short: "Reorder remaining points by proximity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRoute(cmd.Context(), func(rt *app.Runtime, loadErr error) error {
				if loadErr != nil {
					return loadErr
				}
				if err := rt.Controller.Optimize(cmd.Context()); err != nil {
					return err
				}
				printPoints(cmd.OutOrStdout(), rt.Controller.Route().Points)
				return nil
			})
		},
	}
}

func printPoints(w io.Writer, points []route.Point) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "ID", "ADDRESS", "STATE", "LEAFLETS")
	for i, p := range points {
		stateLabel, leaflets := "todo", ""
		if p.Completed {
			stateLabel, leaflets = "done", strconv.Itoa(p.Leaflets)
		}
		t.Row(strconv.Itoa(i+1), strconv.FormatInt(p.ID, 10), p.Address, stateLabel, leaflets)
	}
	fmt.Fprintln(w, t.String())
}

func queueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or reset the pending-action queue",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List queued actions, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := app.Open(runtimeOptions(false))
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			pending := rt.Queue.ListPending()
			w := cmd.OutOrStdout()
			if len(pending) == 0 {
				fmt.Fprintln(w, "No queued actions")
				return nil
			}
			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("ID", "TYPE", "CREATED", "ACTION")
			for _, a := range pending {
				t.Row(a.ID, string(a.Kind()), a.CreatedAt.Local().Format(time.DateTime), a.String())
			}
			fmt.Fprintln(w, t.String())
			if skipped := rt.Queue.Len() - len(pending); skipped > 0 {
				fmt.Fprintf(w, "%d stored record(s) could not be decoded\n", skipped)
			}
			return nil
		},
	}

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every queued action without sending it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to drop queued actions without --yes")
			}
			rt, err := app.Open(runtimeOptions(false))
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			n := rt.Queue.Len()
			rt.Queue.Clear()
			fmt.Fprintf(cmd.OutOrStdout(), "Dropped %d action(s)\n", n)
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&yes, "yes", false, "confirm dropping queued actions")

	cmd.AddCommand(list, clearCmd)
	return cmd
}

func exportCommand() *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the server-side report rows for the loaded route",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != api.FormatCSV && format != api.FormatJSON {
				return fmt.Errorf("unsupported format %q (want csv or json)", format)
			}
			return withRoute(cmd.Context(), func(rt *app.Runtime, loadErr error) error {
				if loadErr != nil {
					return loadErr
				}
				if !rt.Oracle.IsOnline() {
					return errors.New("export needs a connection to the server")
				}
				data, err := rt.Client.FetchReport(cmd.Context(), rt.Controller.Route().ID, format)
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", out, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", api.FormatCSV, "output format: csv or json")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}
