package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tnicklin/metronome/codec"
	"github.com/tnicklin/metronome/logger"
	"github.com/tnicklin/metronome/store"
	"github.com/tnicklin/metronome/tick"
	"golang.org/x/sync/errgroup"
)

func newRunCmd(files *[]string) *cobra.Command {
	var (
		ticks   uint64
		workers int
		save    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the configured clock and wait on its ticks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, *files, func(ctx context.Context, p runParams) error {
				c := p.Config.Clock.Build(tick.WithLogger(p.Logger.Named("clock")))
				return drive(ctx, p, c, ticks, workers, save)
			})
		},
	}
	cmd.Flags().Uint64VarP(&ticks, "ticks", "n", 10, "ticks each worker waits for")
	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "goroutines waiting on the clock")
	cmd.Flags().StringVar(&save, "save", "", "save the clock under this name when done")
	return cmd
}

func newResumeCmd(files *[]string) *cobra.Command {
	var (
		ticks   uint64
		workers int
	)

	cmd := &cobra.Command{
		Use:   "resume NAME",
		Short: "Continue a saved clock from where it was paused",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			return withStore(cmd, *files, func(ctx context.Context, p runParams) error {
				c, err := store.Load(ctx, p.Store, name, tick.WithLogger(p.Logger.Named("clock").With("name", name)))
				if err != nil {
					return err
				}
				return drive(ctx, p, c, ticks, workers, name)
			})
		},
	}
	cmd.Flags().Uint64VarP(&ticks, "ticks", "n", 10, "ticks each worker waits for")
	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "goroutines waiting on the clock")
	return cmd
}

func newShowCmd(files *[]string) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show NAME",
		Short: "Print a saved clock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := codec.ParseFormat(format)
			if err != nil {
				return err
			}
			if f == codec.CBOR {
				return fmt.Errorf("show: %s is not a text format", f)
			}

			return withStore(cmd, *files, func(ctx context.Context, p runParams) error {
				rec, err := p.Store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				data, err := codec.Marshal(f, recordView{
					Name:    rec.Name,
					Clock:   rec.Snapshot,
					Ticks:   rec.Snapshot.Ticks(),
					SavedAt: rec.SavedAt,
				})
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(data)))
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml")
	return cmd
}

func newListCmd(files *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved clocks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, *files, func(ctx context.Context, p runParams) error {
				recs, listErr := p.Store.List(ctx)

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "NAME\tTICK RATE\tTICKS\tELAPSED\tSAVED AT")
				for _, r := range recs {
					_, _ = fmt.Fprintf(tw, "%s\t%dms\t%d\t%v\t%s\n",
						r.Name,
						r.Snapshot.TickRateMS,
						r.Snapshot.Ticks(),
						r.Snapshot.Elapsed,
						r.SavedAt.Local().Format(time.DateTime),
					)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				return listErr
			})
		},
	}
}

func newDeleteCmd(files *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a saved clock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, *files, func(ctx context.Context, p runParams) error {
				if err := p.Store.Delete(ctx, args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return err
			})
		},
	}
}

type recordView struct {
	Name    string        `json:"name" yaml:"name"`
	Clock   tick.Snapshot `json:"clock" yaml:"clock"`
	Ticks   uint64        `json:"ticks" yaml:"ticks"`
	SavedAt time.Time     `json:"saved_at" yaml:"saved_at"`
}

// drive runs c for the given number of ticks, pauses it and, when save is
// set, stores it. An interrupted run is still saved.
func drive(ctx context.Context, p runParams, c *tick.Clock, ticks uint64, workers int, save string) error {
	if c.IsPaused() {
		if err := c.Unpause(); err != nil {
			return fmt.Errorf("start clock: %w", err)
		}
	}
	p.Logger.InfoW("clock running", "clock", c.String(), "ticks", ticks, "workers", workers)

	err := waitTicks(ctx, c.ReadOnly(), ticks, workers, p.Logger)
	c.Pause()
	switch {
	case errors.Is(err, context.Canceled):
		p.Logger.InfoW("run interrupted", "clock", c.String())
	case err != nil:
		return err
	default:
		p.Logger.InfoW("run complete", "clock", c.String())
	}

	if save == "" {
		return nil
	}
	if err := p.Store.Save(context.WithoutCancel(ctx), save, c); err != nil {
		return fmt.Errorf("save clock %q: %w", save, err)
	}
	p.Logger.InfoW("clock saved", "name", save, "clock", c.String())
	return nil
}

// waitTicks starts workers goroutines that each wait for the next n ticks of
// r. All workers wait on the same absolute ticks; a tick that has already
// passed by the time a worker gets to it is logged and skipped.
func waitTicks(ctx context.Context, r tick.Reader, n uint64, workers int, log logger.Logger) error {
	if workers < 1 {
		workers = 1
	}
	start, err := r.TicksSinceStarted()
	if err != nil {
		return err
	}
	if n > math.MaxUint64-start {
		n = math.MaxUint64 - start
	}
	last := start + n

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			for target := start + 1; target <= last && target > start; target++ {
				err := r.WaitUntilContext(gctx, target)
				if errors.Is(err, tick.ErrAlreadyPast) {
					log.WarnW("tick missed", "worker", w, "tick", target)
					continue
				}
				if err != nil {
					return err
				}
				log.DebugW("tick", "worker", w, "tick", target)
			}
			return nil
		})
	}
	return g.Wait()
}
