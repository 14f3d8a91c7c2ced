// Command mwcomd is the process-wide entrypoint for the IPC middleware
// core: it initializes the RuntimeSingleton from a JSON configuration
// manifest and keeps the discovery facade alive until a termination
// signal arrives. It does not offer any configured instance itself.
// Mirrors cmd/sysbox-fs/main.go's
// flag-parsing, logging-setup, and signal-handling structure.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	systemd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/eclipse-score/mw-com-go/runtime"
)

const usage = `mwcomd shared-memory IPC middleware daemon

mwcomd hosts the service-discovery and shared-memory event-transport
core of the middleware: it watches/publishes flag files under
--discovery-root and serves as the process-wide RuntimeSingleton for
in-process proxy/skeleton bindings loaded into the same binary via the
generated code this core is paired with.
`

func runProfiler(ctx *cli.Context) (interface{ Stop() }, error) {
	var prof interface{ Stop() }

	cpuProfOn := ctx.Bool("cpu-profiling")
	memProfOn := ctx.Bool("memory-profiling")

	if cpuProfOn && memProfOn {
		return nil, fmt.Errorf("unsupported parameter combination: cpu and memory profiling")
	}
	if !(cpuProfOn || memProfOn) {
		return nil, nil
	}

	if cpuProfOn {
		prof = profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	}
	if memProfOn {
		prof = profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	}
	return prof, nil
}

func exitHandler(signalChan chan os.Signal, rt *runtime.Runtime, prof interface{ Stop() }) {
	s := <-signalChan
	logrus.Warnf("mwcomd caught signal: %s", s)
	logrus.Info("Stopping (gracefully) ...")

	systemd.SdNotify(false, systemd.SdNotifyStopping)

	if err := rt.Close(); err != nil {
		logrus.Warnf("error during runtime shutdown: %v", err)
	}
	if prof != nil {
		prof.Stop()
	}

	logrus.Info("Exiting ...")
	os.Exit(0)
}

func main() {
	app := cli.NewApp()
	app.Name = "mwcomd"
	app.Usage = usage

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "discovery-root",
			Value: "/tmp/mw_com_lola/service_discovery",
			Usage: "root directory for the filesystem-based offer/find flag files",
		},
		cli.StringFlag{
			Name:  "shm-root",
			Value: "/dev/shm/mw_com_lola",
			Usage: "root directory for shared-memory event-slot regions",
		},
		cli.StringFlag{
			Name:  "config",
			Usage: "path to the JSON configuration manifest (empty: no instances configured)",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "log categories to include (debug, info, warning, error, fatal)",
		},
		cli.StringFlag{
			Name:  "log-format",
			Value: "text",
			Usage: "log format; must be json or text",
		},
		cli.BoolFlag{
			Name:   "cpu-profiling",
			Usage:  "enable cpu-profiling data collection",
			Hidden: true,
		},
		cli.BoolFlag{
			Name:   "memory-profiling",
			Usage:  "enable memory-profiling data collection",
			Hidden: true,
		},
	}

	app.Before = func(ctx *cli.Context) error {
		if logFormat := ctx.GlobalString("log-format"); logFormat == "json" {
			logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
		} else {
			logrus.SetFormatter(&logrus.TextFormatter{TimestampFormat: "2006-01-02 15:04:05", FullTimestamp: true})
		}

		switch ctx.GlobalString("log-level") {
		case "debug":
			logrus.SetLevel(logrus.DebugLevel)
		case "info":
			logrus.SetLevel(logrus.InfoLevel)
		case "warning":
			logrus.SetLevel(logrus.WarnLevel)
		case "error":
			logrus.SetLevel(logrus.ErrorLevel)
		case "fatal":
			logrus.SetLevel(logrus.FatalLevel)
		default:
			logrus.Fatalf("log-level option %q not recognized", ctx.GlobalString("log-level"))
		}
		return nil
	}

	app.Action = func(ctx *cli.Context) error {
		logrus.Info("Initiating mwcomd ...")

		rt, err := runtime.Initialize(runtime.Config{
			DiscoveryRoot: ctx.GlobalString("discovery-root"),
			ShmRoot:       ctx.GlobalString("shm-root"),
			ManifestPath:  ctx.GlobalString("config"),
		})
		if err != nil {
			return fmt.Errorf("failed to initialize runtime: %w", err)
		}

		prof, err := runProfiler(ctx)
		if err != nil {
			logrus.Fatal(err)
		}

		exitChan := make(chan os.Signal, 1)
		signal.Notify(exitChan, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
		go exitHandler(exitChan, rt, prof)

		systemd.SdNotify(false, systemd.SdNotifyReady)
		logrus.Info("Ready ...")

		select {}
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
