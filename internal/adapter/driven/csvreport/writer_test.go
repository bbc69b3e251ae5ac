package csvreport_test

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/critchecker/internal/adapter/driven/csvreport"
	"github.com/ericfisherdev/critchecker/internal/domain/model"
)

func sampleRecords() []model.CritiqueRecord {
	batch := model.CommentURL{TypeID: "1", ItemID: "100", CommentID: "1"}
	zone := time.FixedZone("PST", -8*60*60)
	return []model.CritiqueRecord{
		{
			BatchURL:    batch,
			CritiqueURL: model.CommentURL{TypeID: "1", ItemID: "100", CommentID: "11"},
			Author:      "bob",
			Posted:      time.Date(2023, 12, 26, 10, 0, 0, 0, zone),
			Text:        "Good use of color.",
			Words:       4,
		},
		{
			BatchURL:    batch,
			CritiqueURL: model.CommentURL{TypeID: "1", ItemID: "100", CommentID: "12"},
			Author:      "carol",
			Posted:      time.Date(2023, 12, 26, 11, 0, 0, 0, zone),
			Text:        "Needs better contrast,\n\"12\" words more here",
			Words:       7,
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWrite_DefaultColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "critmas.csv")
	w := csvreport.NewWriter(path)

	require.NoError(t, w.Write(context.Background(), sampleRecords()))

	assert.Equal(t, [][]string{
		{"batch_url", "crit_url", "crit_author", "crit_words"},
		{"https://www.deviantart.com/comments/1/100/1", "https://www.deviantart.com/comments/1/100/11", "bob", "4"},
		{"https://www.deviantart.com/comments/1/100/1", "https://www.deviantart.com/comments/1/100/12", "carol", "7"},
	}, readCSV(t, path))
}

func TestWrite_OptionalColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "report.csv")
	w := csvreport.NewWriter(path, csvreport.WithTimestamp(), csvreport.WithBody())

	require.NoError(t, w.Write(context.Background(), sampleRecords()))

	rows := readCSV(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"batch_url", "crit_url", "crit_author", "crit_words", "crit_posted_at", "crit_body"}, rows[0])
	assert.Equal(t, "2023-12-26T18:00:00Z", rows[1][4])
	assert.Equal(t, "Needs better contrast,\n\"12\" words more here", rows[2][5])
}

func TestWrite_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "critmas.csv")
	w := csvreport.NewWriter(path, csvreport.WithTimestamp())

	require.NoError(t, w.Write(context.Background(), sampleRecords()))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, w.Write(context.Background(), sampleRecords()))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestWrite_OverwritesPreviousReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "critmas.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale,data\n1,2\n3,4\n5,6\n"), 0o600))

	w := csvreport.NewWriter(path)
	require.NoError(t, w.Write(context.Background(), nil))

	assert.Equal(t, [][]string{{"batch_url", "crit_url", "crit_author", "crit_words"}}, readCSV(t, path))
}

func TestWrite_LockedReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "critmas.csv")
	held := flock.New(path + ".lock")
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	t.Cleanup(func() { _ = held.Unlock() })

	err = csvreport.NewWriter(path).Write(context.Background(), sampleRecords())

	require.ErrorIs(t, err, csvreport.ErrReportLocked)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWrite_CancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "critmas.csv")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := csvreport.NewWriter(path).Write(ctx, sampleRecords())

	require.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
