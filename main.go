package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/microsim/task"
	"github.com/tsinghua-fib-lab/microsim/utils/config"
	"github.com/tsinghua-fib-lab/microsim/utils/input"
	"github.com/tsinghua-fib-lab/microsim/utils/service"
	"github.com/tsinghua-fib-lab/microsim/utils/store"
	"github.com/urfave/cli/v2"
)

var (
	// log
	logLevels = map[string]logrus.Level{
		"trace":    logrus.TraceLevel,
		"debug":    logrus.DebugLevel,
		"info":     logrus.InfoLevel,
		"warn":     logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"critical": logrus.FatalLevel,
		"off":      logrus.PanicLevel,
	}

	log = logrus.WithField("module", "microsim")
)

func main() {
	app := &cli.App{
		Name:  "microsim",
		Usage: "deterministic tick-based microscopic traffic simulation",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "config file path", Required: true},
			// 缓存：将MongoDB数据根据数据库db和col序列化到本地文件系统，并总是先试图从文件系统中加载
			&cli.StringFlag{Name: "cache", Value: "", Usage: "input cache dir path (empty means disable cache)"},
			&cli.StringFlag{Name: "log.level", Value: "info", Usage: "log level (trace debug info warn error critical off)"},
		},
		Before: setupLog,
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the simulation to the end",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "resume", Usage: "restore from the latest snapshot in output.store before running"},
				},
				Action: run,
			},
			{
				Name:  "serve",
				Usage: "serve the query and control API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "listen", Value: ":51102", Usage: "listening address"},
				},
				Action: serve,
			},
			{
				Name:   "validate",
				Usage:  "load and validate the network and scenario only",
				Action: validate,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setupLog(c *cli.Context) error {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.0000",
	})
	level, ok := logLevels[c.String("log.level")]
	if !ok {
		return fmt.Errorf("log.level must be one of trace, debug, info, warn, error, critical, off")
	}
	logrus.SetLevel(level)
	return nil
}

// load 读取配置与输入，返回加载完成的仿真任务
func load(c *cli.Context) (*task.Context, config.Config, error) {
	conf, err := config.Load(c.String("config"))
	if err != nil {
		return nil, conf, err
	}
	conf.ApplyDefaults()
	if err := conf.Validate(); err != nil {
		return nil, conf, err
	}
	log.Debugf("%+v", conf)
	in, err := input.Init(c.Context, conf.Input, c.String("cache"))
	if err != nil {
		return nil, conf, err
	}
	t := task.NewContext(conf)
	if err := t.Load(in.Network, in.Scenario); err != nil {
		return nil, conf, err
	}
	return t, conf, nil
}

func run(c *cli.Context) error {
	t, conf, err := load(c)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if conf.Output.SaveEvery > 0 || c.Bool("resume") {
		s, err := store.New(ctx, conf.Output.Store)
		if err != nil {
			return err
		}
		defer s.Close()
		if c.Bool("resume") {
			snap, err := s.Latest(ctx)
			if err != nil {
				return fmt.Errorf("resume: %w", err)
			}
			if err := t.Restore(snap); err != nil {
				return err
			}
		}
		t.SetStore(s)
	}
	if conf.Output.Trace != "" {
		f, err := os.Create(conf.Output.Trace)
		if err != nil {
			return err
		}
		defer f.Close()
		t.SetTrace(f)
	}
	if err := t.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func serve(c *cli.Context) error {
	t, _, err := load(c)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	server := service.New()
	t.Register(server)
	return server.Serve(ctx, c.String("listen"))
}

func validate(c *cli.Context) error {
	conf, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	conf.ApplyDefaults()
	if err := conf.Validate(); err != nil {
		return err
	}
	// input.Init在返回前完成校验
	in, err := input.Init(c.Context, conf.Input, c.String("cache"))
	if err != nil {
		return err
	}
	log.Infof("ok: %d lanes, %d turns, %d trips, %d transit routes",
		len(in.Network.Lanes), len(in.Network.Turns), len(in.Scenario.Trips), len(in.Scenario.TransitRoutes))
	return nil
}
