package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/magneto-serge/magneto/config"
	"github.com/magneto-serge/magneto/internal/application"
	"github.com/magneto-serge/magneto/proxy"

	ct "github.com/launchdarkly/go-configtypes"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type serveFlags struct {
	mode   string
	port   int
	target string
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve [cassette]",
		Short: "Run the proxy",
		Long: `Run the proxy until interrupted.

With a cassette name, a session starts immediately in the configured mode (auto by default: replay
the cassette if it exists, otherwise record it). Without one, the proxy answers 503 until a session
is started through the admin API, unless the mode is passthrough.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, flags, args)
		},
	}
	cmd.Flags().StringVar(&flags.mode, "mode", "", "auto, record, replay, replay-strict, passthrough or hybrid")
	cmd.Flags().IntVar(&flags.port, "port", 0, "port to listen on")
	cmd.Flags().StringVar(&flags.target, "target", "", "base URL for requests that are not in proxy form")
	return cmd
}

// applyServeFlags overrides configuration values with any flags that were given.
func applyServeFlags(c *config.Config, flags serveFlags) error {
	if flags.mode != "" {
		mode, err := config.NewOptModeFromString(flags.mode)
		if err != nil {
			return err
		}
		c.Main.Mode = mode
	}
	if flags.port != 0 {
		port, err := ct.NewOptIntGreaterThanZero(flags.port)
		if err != nil {
			return errBadPortFlag(flags.port)
		}
		c.Main.Port = port
	}
	if flags.target != "" {
		target, err := ct.NewOptURLAbsoluteFromString(flags.target)
		if err != nil {
			return err
		}
		c.Main.TargetURL = target
	}
	return nil
}

func runServe(ctx context.Context, opts *rootOptions, flags serveFlags, args []string) error {
	loggers, err := opts.loggers(ldlog.Info)
	if err != nil {
		return err
	}
	if err := opts.Resolve(); err != nil {
		return err
	}
	loggers.Infof(logMsgStarting, application.DescribeVersion(proxy.Version), opts.DescribeConfigSource())

	c, err := opts.LoadConfig(loggers)
	if err != nil {
		return err
	}
	if err := applyServeFlags(&c, flags); err != nil {
		return err
	}

	p, err := proxy.NewProxy(c, loggers)
	if err != nil {
		return err
	}
	defer p.Shutdown()

	switch {
	case len(args) == 1:
		err = p.Begin(p.Mode(), args[0])
	case p.Mode() == config.ModePassThrough:
		err = p.Begin(config.ModePassThrough, "")
	default:
		err = p.Listen()
	}
	if err != nil {
		return err
	}
	loggers.Infof(logMsgProxyAddress, p.Addr())

	var adminServer *http.Server
	var adminErrs <-chan error
	if adminPort := c.Main.AdminPort.GetOrElse(0); adminPort > 0 {
		listener, err := application.Listen(adminPort)
		if err != nil {
			return err
		}
		adminServer, adminErrs = application.StartHTTPServer(listener, p.AdminHandler(), "admin API", loggers)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return waitForServer(ctx, p.ServerErrors())
	})
	if adminServer != nil {
		g.Go(func() error {
			return waitForServer(ctx, adminErrs)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		loggers.Info(logMsgShuttingDown)
		if adminServer != nil {
			_ = adminServer.Close()
		}
		p.Shutdown()
		return nil
	})

	return g.Wait()
}

// waitForServer returns the server's error if it stops unexpectedly, or nil once the context is done.
func waitForServer(ctx context.Context, errs <-chan error) error {
	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		return nil
	}
}
