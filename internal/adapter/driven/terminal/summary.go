package terminal

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ericfisherdev/critchecker/internal/domain/model"
)

// RenderSummary formats the outcome of a run as a two-column table.
func RenderSummary(s model.RunSummary) string {
	rows := []struct {
		label string
		value int
	}{
		{"Batches", s.Batches},
		{"Critiques", s.Critiques},
		{"Valid critiques", s.ValidCritiques},
		{"Empty critiques", s.EmptyCritiques},
		{"Duplicates dropped", s.DuplicatesDropped},
		{"Skipped (fetch errors)", s.FetchFailures},
		{"Skipped (parse errors)", s.ParseFailures},
		{"Comments fetched", s.CommentsFetched},
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Metric", "Count"})
	for _, r := range rows {
		tw.AppendRow(table.Row{r.label, strconv.Itoa(r.value)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	return tw.Render()
}

// RenderRecords formats stored critiques as a table, one row per critique.
func RenderRecords(records []model.CritiqueRecord) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Batch", "Critique", "Author", "Words", "Source"})
	for _, r := range records {
		tw.AppendRow(table.Row{
			r.BatchURL.String(),
			r.CritiqueURL.String(),
			r.Author,
			strconv.Itoa(r.Words),
			string(r.Source),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	return tw.Render()
}
