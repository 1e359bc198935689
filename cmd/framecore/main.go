// Package main provides a CLI demo of the frame-access subsystem: pull
// a single frame at a given time, or simulate sequential playback and
// report the effective frame rate.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/framecore/pkg/adapters/ffprobe"
	"github.com/user/framecore/pkg/adapters/logger"
	"github.com/user/framecore/pkg/config"
	"github.com/user/framecore/pkg/ports"
	"github.com/user/framecore/pkg/session"
)

func main() {
	app := &cli.App{
		Name:  "framecore",
		Usage: "extract and play back frames from a video file",
		Commands: []*cli.Command{
			frameCommand(),
			playCommand(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func frameCommand() *cli.Command {
	return &cli.Command{
		Name:      "frame",
		Usage:     "extract one frame at a given time and write it as a raw BGRA file",
		ArgsUsage: "<input> <time-seconds> <output>",
		Flags:     commonFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() != 3 {
				return cli.Exit("expected exactly 3 arguments: input, time, output", 1)
			}
			input := c.Args().Get(0)
			t, err := time.ParseDuration(c.Args().Get(1) + "s")
			if err != nil {
				return cli.Exit(fmt.Sprintf("invalid time: %v", err), 1)
			}
			output := c.Args().Get(2)

			sess, _, cleanup, err := openSession(c, input)
			if err != nil {
				return err
			}
			defer cleanup()

			fr, err := sess.GetFrame(t)
			if err != nil {
				return cli.Exit(fmt.Sprintf("get_frame failed: %v", err), 1)
			}
			defer fr.Release()

			if err := os.WriteFile(output, fr.Pix, 0o644); err != nil {
				return cli.Exit(fmt.Sprintf("write output: %v", err), 1)
			}
			fmt.Println(l10n.F("Wrote frame at %s (%dx%d) to %s", fr.Time, fr.Width, fr.Height, output))
			return nil
		},
	}
}

func playCommand() *cli.Command {
	return &cli.Command{
		Name:      "play",
		Usage:     "simulate sequential playback and report timing",
		ArgsUsage: "<input> <start-seconds> <frame-count>",
		Flags:     commonFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() != 3 {
				return cli.Exit("expected exactly 3 arguments: input, start, frame-count", 1)
			}
			input := c.Args().Get(0)
			start, err := time.ParseDuration(c.Args().Get(1) + "s")
			if err != nil {
				return cli.Exit(fmt.Sprintf("invalid start: %v", err), 1)
			}
			var count int
			if _, err := fmt.Sscanf(c.Args().Get(2), "%d", &count); err != nil {
				return cli.Exit(fmt.Sprintf("invalid frame-count: %v", err), 1)
			}

			sess, info, cleanup, err := openSession(c, input)
			if err != nil {
				return err
			}
			defer cleanup()

			frameRate := info.FrameRate
			if frameRate <= 0 {
				frameRate = 60
			}
			frameDuration := time.Duration(float64(time.Second) / frameRate)

			begin := time.Now()
			for i := 0; i < count; i++ {
				fr, err := sess.GetFrame(start + time.Duration(i)*frameDuration)
				if err != nil {
					return cli.Exit(fmt.Sprintf("get_frame(%d) failed: %v", i, err), 1)
				}
				fr.Release()
			}
			elapsed := time.Since(begin)
			fmt.Println(l10n.F("Played %d frames in %s (%.1f fps effective)", count, elapsed, float64(count)/elapsed.Seconds()))
			return nil
		},
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "hardware-decode", Value: true, Usage: "attempt hardware-accelerated decoding first"},
		&cli.StringFlag{Name: "hardware-decode-api", Value: "auto", Usage: "ffmpeg -hwaccel value"},
		&cli.IntFlag{Name: "max-cache-size", Value: 0, Usage: "frame cache capacity (0 = auto)"},
		&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn, error, or quiet"},
	}
}

func openSession(c *cli.Context, input string) (*session.Session, ports.StreamInfo, func(), error) {
	cfg := config.Defaults()
	cfg.HardwareDecode = c.Bool("hardware-decode")
	cfg.HardwareDecodeAPI = c.String("hardware-decode-api")
	cfg.MaxCacheSize = c.Int("max-cache-size")

	log := logger.NewConsole(parseLevel(c.String("log-level")))

	info, err := ffprobe.New().Probe(c.Context, input)
	if err != nil {
		return nil, ports.StreamInfo{}, nil, cli.Exit(fmt.Sprintf("probe failed: %v", err), 1)
	}

	sess, err := session.Open(c.Context, input, info, cfg, session.Deps{Logger: log})
	if err != nil {
		return nil, ports.StreamInfo{}, nil, cli.Exit(fmt.Sprintf("open session failed: %v", err), 1)
	}
	return sess, info, sess.Dispose, nil
}

func parseLevel(s string) ports.LogLevel {
	switch s {
	case "debug":
		return ports.LevelDebug
	case "warn":
		return ports.LevelWarn
	case "error":
		return ports.LevelError
	case "quiet":
		return ports.LevelQuiet
	default:
		return ports.LevelInfo
	}
}
