package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/tendant/imagelayer/pkg/imagelayer"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// layerTable renders one consistent snapshot of the named layers
func layerTable(l *loadedScene) (string, error) {
	layers := make([]*imagelayer.ImageLayer, 0, len(l.order))
	for _, name := range l.order {
		layers = append(layers, l.names[name])
	}
	snaps, err := imagelayer.Snapshots(l.scene, layers)
	if err != nil {
		return "", err
	}

	rows := make([][]string, 0, len(snaps))
	for i, snap := range snaps {
		index := "-"
		if snap.EditableIndex != imagelayer.NoEditableIndex {
			index = fmt.Sprint(snap.EditableIndex)
		}
		content := "default"
		if snap.Content != nil {
			content = snap.Content.ID().String()[:8]
		}
		rows = append(rows, []string{
			l.order[i],
			fmt.Sprintf("%dx%d", snap.Width, snap.Height),
			formatTime(snap.Duration),
			index,
			content,
			formatTime(snap.ContentDuration),
			formatRanges(snap.VideoRanges),
		})
	}

	headers := []string{"Layer", "Size", "Duration", "Index", "Content", "Content Duration", "Video Ranges"}
	aligns := []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft, alignRight, alignLeft}
	return renderTable(headers, rows, aligns), nil
}

func formatRanges(ranges []imagelayer.VideoRange) string {
	if len(ranges) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(ranges))
	for _, r := range ranges {
		parts = append(parts, fmt.Sprintf("%s+%s", formatTime(r.Start), formatTime(r.Duration)))
	}
	return strings.Join(parts, " ")
}
