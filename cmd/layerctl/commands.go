package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tendant/imagelayer/pkg/imagelayer"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show every layer with its active content",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := ctx.load(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer loaded.scene.Close()

			out, err := layerTable(loaded)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newMapCommand(ctx *commandContext) *cobra.Command {
	var toLayer bool

	cmd := &cobra.Command{
		Use:   "map <layer> <time>...",
		Short: "Convert times between a layer's timeline and its content's",
		Long: "Convert layer times to content times, or content times to layer times with --to-layer.\n" +
			"Times are Go durations (1.5s, 250ms) or integer microseconds.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := ctx.load(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer loaded.scene.Close()

			layer, err := loaded.layer(args[0])
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(args)-1)
			for _, raw := range args[1:] {
				t, err := parseTime(raw)
				if err != nil {
					return err
				}
				var mapped imagelayer.Time
				if toLayer {
					mapped, err = layer.ContentTimeToLayer(t)
				} else {
					mapped, err = layer.LayerTimeToContent(t)
				}
				if err != nil {
					return err
				}
				rows = append(rows, []string{formatTime(t), formatTime(mapped), fmt.Sprint(int64(mapped))})
			}

			headers := []string{"Layer Time", "Content Time", "Content µs"}
			if toLayer {
				headers = []string{"Content Time", "Layer Time", "Layer µs"}
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, []columnAlignment{alignRight, alignRight, alignRight}))
			return nil
		},
	}

	cmd.Flags().BoolVar(&toLayer, "to-layer", false, "Convert content times to layer times")
	return cmd
}

func newReplaceCommand(ctx *commandContext) *cobra.Command {
	var (
		durationStr string
		rangeStrs   []string
		broadcast   bool
		reset       bool
	)

	cmd := &cobra.Command{
		Use:   "replace <layer>",
		Short: "Assign a replacement content and show the resulting scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := ctx.load(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer loaded.scene.Close()

			layer, err := loaded.layer(args[0])
			if err != nil {
				return err
			}

			var content *imagelayer.Content
			if !reset {
				native, err := parseTime(durationStr)
				if err != nil {
					return err
				}
				ranges := make([]imagelayer.VideoRange, 0, len(rangeStrs))
				for _, raw := range rangeStrs {
					r, err := parseRange(raw)
					if err != nil {
						return err
					}
					ranges = append(ranges, r)
				}
				if !cmd.Flags().Changed("duration") {
					native = imagelayer.ExtentPolicy.ContentDuration(0, ranges)
				}
				content, err = imagelayer.NewContent(native, ranges)
				if err != nil {
					return err
				}
			}

			if broadcast {
				err = layer.ReplaceImage(content)
			} else {
				err = layer.SetImage(content)
			}
			if err != nil {
				return err
			}

			out, err := layerTable(loaded)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&durationStr, "duration", "0", "Native duration of the replacement content (default: end of the furthest range)")
	cmd.Flags().StringArrayVar(&rangeStrs, "range", nil, "Video range start:duration (repeatable)")
	cmd.Flags().BoolVar(&broadcast, "broadcast", false, "Replace every layer sharing the editable index")
	cmd.Flags().BoolVar(&reset, "reset", false, "Revert to the default content instead")
	return cmd
}
