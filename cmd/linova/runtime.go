package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"linova-go/internal/cache"
	"linova-go/internal/deeplink"
	"linova-go/internal/logger"
	"linova-go/internal/remote"
	"linova-go/internal/syncer"

	"github.com/spf13/cobra"
)

// runtime bundles what every command needs: the on-device cache, the
// backend client and a logger.
type runtime struct {
	cfg    clientConfig
	log    *logger.Logger
	store  *cache.SQLiteStore
	client *remote.Client
}

func openRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg, err := loadConfig(cmd, configFile)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, err
	}
	store, err := cache.OpenSQLite(cfg.CachePath)
	if err != nil {
		return nil, err
	}
	client := remote.NewClient(cfg.BaseURL,
		remote.WithTimeout(cfg.Timeout),
		remote.WithSessionStore(store),
		remote.WithLogger(log),
	)
	return &runtime{cfg: cfg, log: log, store: store, client: client}, nil
}

func (rt *runtime) Close() {
	if err := rt.store.Close(); err != nil {
		rt.log.Warn("cache close failed", "error", err)
	}
	rt.log.Sync()
}

func (rt *runtime) controller() *syncer.Controller {
	return syncer.New(syncer.Options{
		Gateway: rt.client,
		Store:   rt.store,
		Logger:  rt.log,
		Schemes: deeplink.DefaultSchemes,
	})
}

// sync starts a controller and waits until it is live.
func (rt *runtime) sync(ctx context.Context) (*syncer.Controller, syncer.State, error) {
	ctrl := rt.controller()
	if err := ctrl.Start(ctx); err != nil {
		return nil, syncer.State{}, err
	}
	state, err := waitLive(ctx, ctrl)
	if err != nil {
		ctrl.Stop()
		return nil, state, err
	}
	return ctrl, state, nil
}

func waitLive(ctx context.Context, ctrl *syncer.Controller) (syncer.State, error) {
	return waitFor(ctx, ctrl, func(s syncer.State) bool { return s.Phase == syncer.PhaseLive })
}

// waitFor blocks until the controller state satisfies done.
func waitFor(ctx context.Context, ctrl *syncer.Controller, done func(syncer.State) bool) (syncer.State, error) {
	changed := make(chan struct{}, 1)
	unsubscribe := ctrl.OnChange(func(syncer.State) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()
	for {
		state := ctrl.Snapshot()
		if done(state) {
			return state, nil
		}
		if state.Phase == syncer.PhaseClosed {
			return state, syncer.ErrClosed
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return state, ctx.Err()
		}
	}
}

func printState(w io.Writer, state syncer.State) {
	if state.UserID == "" {
		fmt.Fprintln(w, "Not signed in.")
	} else {
		fmt.Fprintf(w, "Signed in as %s (%s)\n", state.Name, state.Email)
		fmt.Fprintf(w, "Level: %s  Current module: %s\n", orDash(state.Level), orDash(state.SelectedModule))
	}
	s := state.Summary
	fmt.Fprintf(w, "Days: %d  Lessons: %d  Activities: %d  XP: %g\n", s.Days, s.Lessons, s.Activities, s.XP)

	modules := modulesOf(state)
	sort.SliceStable(modules, func(i, j int) bool { return modules[i].order < modules[j].order })
	for _, m := range modules {
		mark := " "
		if m.unlocked {
			mark = "x"
		}
		fmt.Fprintf(w, "  [%s] %-32s %d/%d\n", mark, m.title, m.done, m.total)
	}
}

type moduleLine struct {
	title    string
	order    int
	unlocked bool
	done     int
	total    int
}

func modulesOf(state syncer.State) []moduleLine {
	out := make([]moduleLine, 0, len(state.Modules))
	for _, m := range state.Modules {
		done, total := state.ModuleCompleted(m.ID)
		out = append(out, moduleLine{
			title:    m.Title,
			order:    m.Order,
			unlocked: state.ModuleUnlocked(m.ID),
			done:     done,
			total:    total,
		})
	}
	return out
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
