package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vault-guard/internal/config"
	"vault-guard/internal/risk"
	"vault-guard/internal/storage"
	"vault-guard/internal/timelock"
)

const (
	account = "0x1111111111111111111111111111111111111111"
	scam    = "0xbad72921a4f00b123456789abcdef"
)

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Engine.Latency = 0
	cfg.Alerting.Enabled = false
	cfg.Database.DSN = ""
	cfg.Ethereum.RPCURL = ""

	var out bytes.Buffer
	a := NewApp(cfg, zerolog.Nop())
	a.Out = &out
	return a, &out
}

func TestAnalyzePrintsJSON(t *testing.T) {
	a, out := newTestApp(t)

	err := a.Analyze(context.Background(), account, risk.TransactionIntent{To: scam, Value: "0.5"}, OutputOptions{JSON: true})
	require.NoError(t, err)

	var analysis risk.RiskAnalysis
	require.NoError(t, json.Unmarshal(out.Bytes(), &analysis))
	assert.Equal(t, risk.ActionBlock, analysis.Action)
	assert.NotEmpty(t, analysis.Findings)
}

func TestSubmitBlockedPrintsVerdict(t *testing.T) {
	a, out := newTestApp(t)

	err := a.Submit(context.Background(), account, risk.TransactionIntent{To: scam, Value: "0.5"}, OutputOptions{})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Transaction blocked")
	assert.Contains(t, out.String(), "score")
}

func TestHistoryWithoutDatabase(t *testing.T) {
	a, _ := newTestApp(t)
	err := a.History(context.Background(), HistoryOptions{Limit: 10}, OutputOptions{})
	assert.ErrorIs(t, err, storage.ErrNotConfigured)
}

func TestPruneRejectsNonPositiveRetention(t *testing.T) {
	a, _ := newTestApp(t)
	assert.Error(t, a.Prune(context.Background(), 0, false))
}

func TestExportRequiresTarget(t *testing.T) {
	a, _ := newTestApp(t)
	assert.Error(t, a.Export(context.Background(), ExportOptions{}))
}

func TestFreezeStatusPrintsNotFrozen(t *testing.T) {
	a, out := newTestApp(t)
	require.NoError(t, a.Freeze(context.Background(), account, 0, OutputOptions{}))
	assert.Contains(t, out.String(), "not frozen")
}

func sampleRecords(n int) []storage.AssessmentRecord {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	records := make([]storage.AssessmentRecord, n)
	for i := range records {
		records[i] = storage.AssessmentRecord{
			ID:         int64(i + 1),
			Account:    account,
			To:         scam,
			Value:      decimal.NewFromInt(int64(i)),
			Score:      100 - i,
			Level:      string(risk.LevelCaution),
			Action:     string(risk.ActionDelay),
			DelayHours: 12,
			Findings:   json.RawMessage(`[]`),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
	}
	return records
}

func TestDownsampleAssessmentsKeepsEndpoints(t *testing.T) {
	records := sampleRecords(10)

	assert.Len(t, downsampleAssessments(records, 0), 10)
	assert.Len(t, downsampleAssessments(records, 20), 10)

	sampled := downsampleAssessments(records, 4)
	require.Len(t, sampled, 4)
	assert.Equal(t, int64(1), sampled[0].ID)
	assert.Equal(t, int64(10), sampled[3].ID)

	single := downsampleAssessments(records, 1)
	require.Len(t, single, 1)
	assert.Equal(t, int64(10), single[0].ID)
}

func TestWriteAssessmentsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "assessments.csv")
	require.NoError(t, writeAssessmentsCSV(path, sampleRecords(3)))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "created_at", rows[0][0])
	assert.Equal(t, "2024-03-01T00:02:00Z", rows[3][0])
	assert.Equal(t, "98", rows[3][5])
	assert.Equal(t, "DELAY", rows[3][7])
}

func TestWriteAssessmentsPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chart.png")
	require.NoError(t, writeAssessmentsPNG(path, sampleRecords(5)))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestPrintPendingEmptyAndRows(t *testing.T) {
	var buf bytes.Buffer
	printPending(&buf, nil, time.Now())
	assert.Contains(t, buf.String(), "no pending transactions")

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	buf.Reset()
	printPending(&buf, []timelock.PendingTransaction{{
		Index:     0,
		Status:    timelock.StatusPending,
		Intent:    risk.TransactionIntent{To: scam, Value: "1.0"},
		Analysis:  risk.RiskAnalysis{Action: risk.ActionDelay},
		CreatedAt: now.Add(-6 * time.Hour),
		ExecuteAt: now.Add(6 * time.Hour),
	}}, now)
	assert.Contains(t, buf.String(), "6h0m0s")
	assert.Contains(t, buf.String(), "50%")
}

func TestSanitizeInline(t *testing.T) {
	assert.Equal(t, "a b c", sanitizeInline("a\nb\rc"))
}
