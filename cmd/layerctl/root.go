package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendant/imagelayer/pkg/imagelayer"
	"github.com/tendant/imagelayer/pkg/imagelayer/repo/memory"
	"github.com/tendant/imagelayer/pkg/imagelayer/scene"
	"github.com/tendant/imagelayer/pkg/imagelayer/scenefile"
	memorystorage "github.com/tendant/imagelayer/pkg/imagelayer/storage/memory"
)

type commandContext struct {
	sceneFile string
	policy    string
	verbose   bool
}

// loadedScene is a scene file brought up in memory
type loadedScene struct {
	scene *scene.Scene
	names map[string]*imagelayer.ImageLayer
	order []string
}

func (c *commandContext) load(ctx context.Context, stderr io.Writer) (*loadedScene, error) {
	if c.sceneFile == "" {
		return nil, errors.New("--scene is required")
	}
	policy, err := imagelayer.ParseDurationPolicy(c.policy)
	if err != nil {
		return nil, err
	}

	f, err := scenefile.Load(c.sceneFile)
	if err != nil {
		return nil, err
	}
	repo := memory.New()
	blobs := memorystorage.New()
	sceneID, err := f.Import(ctx, repo, blobs)
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	layerOpts := []imagelayer.Option{imagelayer.WithDurationPolicy(policy), imagelayer.WithLogger(logger)}
	if c.verbose {
		layerOpts = append(layerOpts, imagelayer.WithEventSink(imagelayer.NewLoggingEventSink(logger)))
	}
	s, err := scene.Load(ctx, sceneID, repo, blobs, scene.WithLayerOptions(layerOpts...), scene.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	loaded := &loadedScene{scene: s, names: make(map[string]*imagelayer.ImageLayer)}
	for i, l := range f.Layers {
		name := l.Name
		if name == "" {
			name = fmt.Sprintf("layer-%d", i)
		}
		layer, ok := s.Layer(l.ID)
		if !ok {
			continue
		}
		loaded.names[name] = layer
		loaded.order = append(loaded.order, name)
	}
	return loaded, nil
}

func (l *loadedScene) layer(name string) (*imagelayer.ImageLayer, error) {
	layer, ok := l.names[name]
	if !ok {
		return nil, fmt.Errorf("no layer named %q (have %s)", name, strings.Join(l.order, ", "))
	}
	return layer, nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "layerctl",
		Short:         "Inspect replaceable image layers of a scene file",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.sceneFile, "scene", "s", "", "Scene description file (YAML)")
	rootCmd.PersistentFlags().StringVar(&ctx.policy, "policy", string(imagelayer.DefaultDurationPolicy), "Content duration policy: extent, coverage or layer")
	rootCmd.PersistentFlags().BoolVarP(&ctx.verbose, "verbose", "v", false, "Log layer events to stderr")

	rootCmd.AddCommand(newInspectCommand(ctx))
	rootCmd.AddCommand(newMapCommand(ctx))
	rootCmd.AddCommand(newReplaceCommand(ctx))

	return rootCmd
}

// parseTime accepts Go durations ("1.5s") or integer microseconds
func parseTime(s string) (imagelayer.Time, error) {
	if us, err := strconv.ParseInt(s, 10, 64); err == nil {
		return imagelayer.Time(us), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: use a duration like 1.5s or microseconds", s)
	}
	return imagelayer.FromDuration(d), nil
}

// parseRange parses start:duration
func parseRange(s string) (imagelayer.VideoRange, error) {
	startStr, durStr, ok := strings.Cut(s, ":")
	if !ok {
		return imagelayer.VideoRange{}, fmt.Errorf("invalid range %q: use start:duration", s)
	}
	start, err := parseTime(startStr)
	if err != nil {
		return imagelayer.VideoRange{}, err
	}
	dur, err := parseTime(durStr)
	if err != nil {
		return imagelayer.VideoRange{}, err
	}
	return imagelayer.VideoRange{Start: start, Duration: dur}, nil
}

func formatTime(t imagelayer.Time) string {
	return t.Duration().String()
}
