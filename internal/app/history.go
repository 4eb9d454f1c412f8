package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"vault-guard/internal/service"
)

// History prints recent risk assessments.
func (a *App) History(ctx context.Context, opts HistoryOptions, out OutputOptions) error {
	return a.withService(ctx, func(svc *service.Service) error {
		records, err := svc.History(ctx, opts.Account, opts.Limit)
		if err != nil {
			return err
		}
		if out.JSON {
			return writeJSON(a.Out, records)
		}
		if len(records) == 0 {
			fmt.Fprintln(a.Out, "no assessments found")
			return nil
		}

		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Time (UTC)\tAccount\tTo\tValue\tFunction\tScore\tLevel\tAction\tDelay")

		for _, rec := range records {
			fmt.Fprintf(
				writer,
				"%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\t%dh\n",
				rec.CreatedAt.UTC().Format(time.RFC3339),
				rec.Account,
				sanitizeInline(rec.To),
				rec.Value.String(),
				sanitizeInline(rec.FunctionName),
				rec.Score,
				rec.Level,
				rec.Action,
				rec.DelayHours,
			)
		}

		return writer.Flush()
	})
}

// Prune deletes assessments older than the retention window.
func (a *App) Prune(ctx context.Context, olderThan time.Duration, dryRun bool) error {
	if olderThan <= 0 {
		return fmt.Errorf("retention must be positive, got %s", olderThan)
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	if dryRun {
		a.Logger.Warn().Time("before", cutoff).Msg("prune dry-run: nothing will be deleted")
		return nil
	}
	return a.withService(ctx, func(svc *service.Service) error {
		deleted, remaining, err := svc.PruneHistory(ctx, cutoff)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "deleted %d assessments before %s, %d remaining\n", deleted, cutoff.Format(time.RFC3339), remaining)
		return nil
	})
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
