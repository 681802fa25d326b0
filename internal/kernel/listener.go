package kernel

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/rs/zerolog"

	"bbkernel/internal/apperr"
	"bbkernel/internal/common/fsutil"
	"bbkernel/internal/container"
	"bbkernel/internal/event"
)

const listenerMethod = "onApplicationInit"

// ContainerListener compiles the container when the application boots and,
// outside debug mode, writes the compiled container to disk so later boots
// restore it instead of rebuilding.
type ContainerListener struct {
	c        *container.Container
	dir      string
	filename string
	debug    bool
	log      zerolog.Logger
}

func listenerFactory(log zerolog.Logger) container.Factory {
	return func(c *container.Container, args container.Args) (any, error) {
		dir, err := args.String(0)
		if err != nil {
			return nil, err
		}
		filename, err := args.String(1)
		if err != nil {
			return nil, err
		}
		debug, err := args.Bool(2)
		if err != nil {
			return nil, err
		}
		return NewContainerListener(c, dir, filename, debug, log), nil
	}
}

// NewContainerListener returns a listener dumping c to dir/filename.json.
func NewContainerListener(c *container.Container, dir, filename string, debug bool, log zerolog.Logger) *ContainerListener {
	return &ContainerListener{c: c, dir: dir, filename: filename, debug: debug, log: log}
}

// Path is the dump file.
func (l *ContainerListener) Path() string {
	return filepath.Join(l.dir, l.filename+".json")
}

// EventHandler implements event.Subscriber.
func (l *ContainerListener) EventHandler(method string) (event.Handler, bool) {
	if method != listenerMethod {
		return nil, false
	}
	return l.OnApplicationInit, true
}

// OnApplicationInit does nothing for a restored container. Otherwise it
// compiles the container and, unless in debug mode, dumps it.
func (l *ContainerListener) OnApplicationInit(_ context.Context, _ *event.Event) error {
	if l.c.IsRestored() {
		l.log.Debug().Msg("container restored from dump, nothing to compile")
		return nil
	}
	if err := l.c.Compile(); err != nil {
		return err
	}
	if l.debug {
		l.log.Debug().Msg("debug mode, container compiled in memory only")
		return nil
	}
	if err := fsutil.EnsureWritableDir(l.dir); err != nil {
		if errors.Is(err, fsutil.ErrNotWritable) {
			return apperr.Wrap(apperr.CodeDirectoryWritable, err, "container directory "+l.dir+" is not writable")
		}
		return apperr.Wrap(apperr.CodeDirectoryCreate, err, "unable to create container directory "+l.dir)
	}
	d, err := l.c.Dump()
	if err != nil {
		return err
	}
	b, err := d.Encode()
	if err != nil {
		return err
	}
	path := l.Path()
	if err := fsutil.WriteFileAtomic(path, b, 0o644); err != nil {
		return apperr.Wrap(apperr.CodeDirectoryWritable, err, "write container dump "+path)
	}
	containerDumps.Inc()
	l.log.Info().Str("path", path).Str("build_id", d.BuildID).Int("services", len(d.Services)).Msg("container dumped")
	return nil
}
