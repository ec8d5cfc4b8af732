package dist

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mkn/maiken/internal/app"
)

// RemoteCompiler spreads compilation over nodes: sources are dealt
// round-robin, each node runs Setup, Compile and then streams its objects
// back.
type RemoteCompiler struct {
	hosts []string
	dial  Dialer
}

func NewRemoteCompiler(hosts []string, dial Dialer) *RemoteCompiler {
	if dial == nil {
		dial = DialHTTP
	}
	return &RemoteCompiler{hosts: hosts, dial: dial}
}

func (rc *RemoteCompiler) Compile(ctx context.Context, a *app.Application, pairs []app.SourceObject, objects *app.Strings) error {
	if len(rc.hosts) == 0 {
		return a.Compile(ctx, pairs, objects)
	}
	parts := make([][]app.SourceObject, len(rc.hosts))
	for i, p := range pairs {
		parts[i%len(rc.hosts)] = append(parts[i%len(rc.hosts)], p)
	}
	args := app.Args{app.ArgDirectory: a.Dir(), app.ArgProfile: a.Profile}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(len(rc.hosts))
	for i, host := range rc.hosts {
		if len(parts[i]) == 0 {
			continue
		}
		i, host := i, host
		g.Go(func() error {
			n := rc.dial(host)
			if err := n.Setup(ctx, args); err != nil {
				return fmt.Errorf("setup on %s: %w", host, err)
			}
			count, err := n.Compile(ctx, a.Dir(), parts[i])
			if err != nil {
				return fmt.Errorf("compile on %s: %w", host, err)
			}
			files, err := n.Fetch(ctx)
			if err != nil {
				return fmt.Errorf("download from %s: %w", host, err)
			}
			if len(files) != count {
				return fmt.Errorf("download from %s: got %d objects, want %d", host, len(files), count)
			}
			logrus.Debugf("%s compiled %d objects", host, count)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, p := range pairs {
		objects.Add(p.Object)
	}
	return nil
}
