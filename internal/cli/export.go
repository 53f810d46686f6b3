package cli

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/gkobilansky/xgoat/internal/engine"
	"github.com/gkobilansky/xgoat/internal/store"
)

func newExportCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export <experiment-id>",
		Short: "Export raw event data",
		Long: `Export the assignment and conversion events of an experiment in CSV or
JSON format, oldest first.

Examples:
  xgoat export hero-headline --format csv > hero-data.csv
  xgoat export hero-headline --format json > hero-data.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if format != "csv" && format != "json" {
				return fmt.Errorf("invalid format: must be 'csv' or 'json'")
			}

			return withEngine(cmd, func(ctx context.Context, e *engine.Engine, _ store.Store) error {
				events, err := e.Events(ctx, id)
				if err != nil {
					return fmt.Errorf("failed to get events: %w", notFound(id, err))
				}

				if format == "csv" {
					return exportCSV(cmd.OutOrStdout(), events)
				}
				return exportJSON(cmd.OutOrStdout(), events)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "csv", "output format (csv or json)")
	return cmd
}

func exportCSV(out io.Writer, events []*store.Event) error {
	w := csv.NewWriter(out)

	// Write header
	if err := w.Write([]string{"timestamp", "event_type", "user_id", "variant_id", "conversion_type", "value"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, e := range events {
		value := ""
		if e.Value != nil {
			value = strconv.FormatFloat(*e.Value, 'f', -1, 64)
		}
		row := []string{
			e.CreatedAt.Format(time.RFC3339Nano),
			e.EventType,
			e.UserID,
			e.VariantID,
			e.ConversionType,
			value,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

type jsonExport struct {
	Events []jsonEvent `json:"events"`
}

type jsonEvent struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	EventType      string    `json:"eventType"`
	Category       string    `json:"category"`
	UserID         string    `json:"userId"`
	VariantID      string    `json:"variantId"`
	VariantName    string    `json:"variantName,omitempty"`
	ConversionType string    `json:"conversionType,omitempty"`
	Value          *float64  `json:"value,omitempty"`
}

func exportJSON(out io.Writer, events []*store.Event) error {
	export := jsonExport{
		Events: make([]jsonEvent, len(events)),
	}

	for i, e := range events {
		export.Events[i] = jsonEvent{
			ID:             e.ID,
			Timestamp:      e.CreatedAt,
			EventType:      e.EventType,
			Category:       e.Category,
			UserID:         e.UserID,
			VariantID:      e.VariantID,
			VariantName:    e.VariantName,
			ConversionType: e.ConversionType,
			Value:          e.Value,
		}
	}

	return printJSON(out, export)
}
