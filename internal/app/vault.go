package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"vault-guard/internal/freeze"
	"vault-guard/internal/risk"
	"vault-guard/internal/service"
	"vault-guard/internal/settings"
	"vault-guard/internal/timelock"
)

// OutputOptions select how command results are printed.
type OutputOptions struct {
	JSON bool
}

// Analyze scores intent for account and prints the assessment.
func (a *App) Analyze(ctx context.Context, account string, intent risk.TransactionIntent, out OutputOptions) error {
	return a.withService(ctx, func(svc *service.Service) error {
		analysis, err := svc.Analyze(ctx, account, intent)
		if err != nil {
			return err
		}
		if out.JSON {
			return writeJSON(a.Out, analysis)
		}
		printAnalysis(a.Out, analysis)
		return nil
	})
}

// Submit analyses intent and routes it by the recommended action.
func (a *App) Submit(ctx context.Context, account string, intent risk.TransactionIntent, out OutputOptions) error {
	return a.withService(ctx, func(svc *service.Service) error {
		result, err := svc.Submit(ctx, account, intent)
		if err != nil {
			return err
		}
		if out.JSON {
			return writeJSON(a.Out, result)
		}
		printAnalysis(a.Out, result.Analysis)
		switch result.Outcome {
		case service.OutcomeExecuted:
			color.New(color.FgGreen, color.Bold).Fprintln(a.Out, "✓ Transaction executed")
		case service.OutcomeBlocked:
			color.New(color.FgRed, color.Bold).Fprintln(a.Out, "✗ Transaction blocked")
		case service.OutcomeQueued:
			color.New(color.FgYellow, color.Bold).Fprintf(a.Out, "⏳ Queued as #%d, executable at %s\n",
				result.Pending.Index, result.Pending.ExecuteAt.UTC().Format(time.RFC3339))
		}
		return nil
	})
}

// ListPending prints the timelock queue of account.
func (a *App) ListPending(ctx context.Context, account string, out OutputOptions) error {
	return a.withService(ctx, func(svc *service.Service) error {
		entries, err := svc.Pending(ctx, account)
		if err != nil {
			return err
		}
		if out.JSON {
			return writeJSON(a.Out, entries)
		}
		printPending(a.Out, entries, time.Now())
		return nil
	})
}

// ResolvePending cancels or executes the entry at index.
func (a *App) ResolvePending(ctx context.Context, account string, index int, execute bool) error {
	return a.withService(ctx, func(svc *service.Service) error {
		op := svc.Cancel
		if execute {
			op = svc.Execute
		}
		entry, err := op(ctx, account, index)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "#%d %s\n", entry.Index, entry.Status)
		return nil
	})
}

// Freeze activates (hours > 0), deactivates (hours < 0) or reports the
// emergency freeze of account.
func (a *App) Freeze(ctx context.Context, account string, hours int, out OutputOptions) error {
	return a.withService(ctx, func(svc *service.Service) error {
		var state freeze.State
		var err error
		switch {
		case hours > 0:
			state, err = svc.ActivateFreeze(ctx, account, hours)
		case hours < 0:
			state, err = svc.DeactivateFreeze(ctx, account)
		default:
			state, err = svc.FreezeState(ctx, account)
		}
		if err != nil {
			return err
		}
		if out.JSON {
			return writeJSON(a.Out, state)
		}
		printFreeze(a.Out, state, time.Now())
		return nil
	})
}

// GuardianOp selects a guardian command.
type GuardianOp int

const (
	GuardianList GuardianOp = iota
	GuardianAdd
	GuardianRemove
)

// Guardians lists, adds or removes guardians of account.
func (a *App) Guardians(ctx context.Context, account string, op GuardianOp, g settings.Guardian, out OutputOptions) error {
	return a.withService(ctx, func(svc *service.Service) error {
		var current settings.Settings
		var err error
		switch op {
		case GuardianAdd:
			current, err = svc.AddGuardian(ctx, account, g)
		case GuardianRemove:
			current, err = svc.RemoveGuardian(ctx, account, g.ID)
		default:
			current, err = svc.Settings(ctx, account)
		}
		if err != nil {
			return err
		}
		if out.JSON {
			return writeJSON(a.Out, current)
		}

		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintf(writer, "Guardians: %d required\n", current.GuardianCount)
		fmt.Fprintln(writer, "ID\tName\tAddress\tType\tStatus")
		for _, guardian := range current.Guardians {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n", guardian.ID, guardian.Name, guardian.Address, guardian.Type, guardian.Status)
		}
		return writer.Flush()
	})
}

func printAnalysis(w io.Writer, analysis risk.RiskAnalysis) {
	levelColor(analysis.Level).Fprintf(w, "%s  score %d/100  action %s", analysis.Level, analysis.Score, analysis.Action)
	if analysis.DelayHours > 0 {
		fmt.Fprintf(w, "  delay %dh", analysis.DelayHours)
	}
	fmt.Fprintln(w)

	if meta := analysis.ContractMetadata; meta != nil {
		fmt.Fprintf(w, "Contract: %s (%s, trust %d, %d days, %d interactions)\n",
			meta.Name, meta.Category, meta.TrustScore, meta.AgeDays, meta.InteractionCount)
	}

	for _, f := range analysis.Findings {
		levelColor(f.Type).Fprintf(w, "  [%s] %s\n", f.Type, f.Title)
		fmt.Fprintf(w, "      %s\n", f.Description)
		if f.Recommendation != "" {
			fmt.Fprintf(w, "      → %s\n", f.Recommendation)
		}
	}

	if sim := analysis.Simulation; sim != nil {
		fmt.Fprintf(w, "Simulation: %s | balance after %s | gas %s\n", sim.AssetChange, sim.BalanceAfter, sim.GasEstimate)
		fmt.Fprintf(w, "Outcome: %s\n", sim.ExpectedOutcome)
	}
}

func printPending(w io.Writer, entries []timelock.PendingTransaction, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no pending transactions")
		return
	}
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "#\tStatus\tTo\tValue\tAction\tExecute At (UTC)\tRemaining\tProgress")
	for _, e := range entries {
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%.0f%%\n",
			e.Index,
			e.Status,
			e.Intent.To,
			e.Intent.Value,
			e.Analysis.Action,
			e.ExecuteAt.UTC().Format(time.RFC3339),
			e.Remaining(now).Truncate(time.Second),
			e.Progress(now)*100,
		)
	}
	writer.Flush()
}

func printFreeze(w io.Writer, state freeze.State, now time.Time) {
	switch {
	case state.InEffect(now):
		color.New(color.FgRed, color.Bold).Fprintf(w, "FROZEN until %s (%s remaining)\n",
			state.Until.UTC().Format(time.RFC3339), state.Remaining(now).Truncate(time.Second))
	case state.Active:
		color.New(color.FgYellow).Fprintln(w, "freeze expired; awaiting sweep")
	default:
		color.New(color.FgGreen).Fprintln(w, "not frozen")
	}
}

func levelColor(level risk.Level) *color.Color {
	switch level {
	case risk.LevelCritical:
		return color.New(color.FgRed, color.Bold)
	case risk.LevelDanger:
		return color.New(color.FgRed)
	case risk.LevelCaution:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgGreen)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
