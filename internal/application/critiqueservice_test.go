package application_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/critchecker/internal/application"
	"github.com/ericfisherdev/critchecker/internal/domain/model"
	"github.com/ericfisherdev/critchecker/internal/domain/port/driven"
)

func TestRun_BatchWithTwoCritiquesAndAcknowledgment(t *testing.T) {
	client := newFakeClient(node{
		id: "1", author: "alice", posted: at(26, 9), body: tiptapBody("Batch 1: please leave your crits below"),
		children: []node{
			{id: "11", author: "bob", posted: at(26, 10), body: tiptapBody("Good use of color.")},
			{id: "12", author: "carol", posted: at(26, 11), body: tiptapBody("Needs better contrast, 12 words more here")},
			{id: "13", author: "alice", posted: at(26, 12), body: tiptapBody("")},
		},
	})
	writer := &fakeWriter{}
	store := &fakeStore{}
	progress := &countingProgress{}
	svc := application.NewCritiqueService(client, writer, store, progress)

	summary, err := svc.Run(context.Background(), launchURL, application.RunOptions{StartDate: startDate})
	require.NoError(t, err)

	want := []model.CritiqueRecord{
		{
			BatchURL: commentURL("1"), CritiqueURL: commentURL("11"), Author: "bob", Posted: at(26, 10),
			Text: "Good use of color.", Words: 4, Chars: 18, Source: model.RecordSourceReply,
		},
		{
			BatchURL: commentURL("1"), CritiqueURL: commentURL("12"), Author: "carol", Posted: at(26, 11),
			Text: "Needs better contrast, 12 words more here", Words: 7, Chars: 41, Source: model.RecordSourceReply,
		},
	}
	if diff := cmp.Diff(want, writer.records); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, model.RunSummary{
		Batches:         1,
		Critiques:       2,
		ValidCritiques:  2,
		CommentsFetched: 2,
	}, summary)

	assert.Equal(t, "100", store.launch.ID)
	assert.Len(t, store.records, 2)
	assert.Equal(t, summary, store.summary)

	assert.Equal(t, 1, progress.total)
	assert.Equal(t, 1, progress.advanced)
	assert.True(t, progress.finished)
}

func TestRun_ReplyAlsoFoundByTextScanIsReportedOnce(t *testing.T) {
	critique := commentURL("21")
	client := newFakeClient(node{
		id: "2", author: "dave", posted: at(27, 9), body: tiptapBody("My batch. Crit: " + critique.String()),
		children: []node{
			{id: "21", author: "erin", posted: at(27, 10), body: tiptapBody("Lovely linework in the foreground")},
		},
	})
	writer := &fakeWriter{}
	svc := application.NewCritiqueService(client, writer, nil, nil)

	summary, err := svc.Run(context.Background(), launchURL, application.RunOptions{StartDate: startDate, ScanText: true})
	require.NoError(t, err)

	require.Len(t, writer.records, 1)
	assert.Equal(t, critique, writer.records[0].CritiqueURL)
	assert.Equal(t, model.RecordSourceReply, writer.records[0].Source)
	assert.Equal(t, 1, summary.DuplicatesDropped)
	assert.Zero(t, client.callCount("comment:21"), "linked reply is served from the cache")
}

func TestRun_EachKeyFetchedAtMostOnce(t *testing.T) {
	shared := commentURL("90").String()
	client := newFakeClient(
		node{id: "1", author: "alice", posted: at(26, 9), body: tiptapRuns([]textRun{{text: "batch", href: shared}}),
			children: []node{
				{id: "11", author: "bob", body: tiptapBody("crit"), children: []node{{id: "111", author: "alice", body: tiptapBody("ty")}}},
				{id: "12", author: "carol", body: tiptapBody("crit")},
			}},
		node{id: "2", author: "bob", posted: at(26, 9), body: tiptapRuns(
			[]textRun{{text: "batch", href: shared}},
			[]textRun{{text: "and", href: commentURL("11").String()}},
		)},
		node{id: "3", author: "carol", posted: at(26, 9), body: tiptapRuns([]textRun{{text: "batch", href: shared}})},
		node{id: "90", author: "dave", posted: at(26, 8), body: tiptapBody("great shading here")},
	)
	svc := application.NewCritiqueService(client, &fakeWriter{}, nil, nil)

	summary, err := svc.Run(context.Background(), launchURL, application.RunOptions{Concurrency: 8})
	require.NoError(t, err)

	calls := client.snapshot()
	for key, n := range calls {
		assert.Equal(t, 1, n, "key %s fetched %d times", key, n)
	}
	total := 0
	for _, n := range calls {
		total += n
	}
	assert.Equal(t, total, summary.CommentsFetched)
	assert.Zero(t, calls["comment:90"], "top-level comments are cached by discovery")
}

func TestRun_DuplicatesAcrossBatchesKeepFirstBatch(t *testing.T) {
	shared := commentURL("90").String()
	client := newFakeClient(
		node{id: "1", author: "alice", posted: at(26, 9), body: tiptapRuns([]textRun{{text: "batch", href: shared}})},
		node{id: "2", author: "bob", posted: at(26, 9), body: tiptapRuns([]textRun{{text: "batch", href: shared}})},
		node{id: "90", author: "dave", posted: at(26, 8), body: tiptapBody("Great shading")},
	)
	writer := &fakeWriter{}
	svc := application.NewCritiqueService(client, writer, nil, nil)

	summary, err := svc.Run(context.Background(), launchURL, application.RunOptions{})
	require.NoError(t, err)

	require.Len(t, writer.records, 1)
	assert.Equal(t, commentURL("1"), writer.records[0].BatchURL)
	assert.Equal(t, 1, summary.DuplicatesDropped)
}

func TestRun_PartialFailuresAreCountedNotFatal(t *testing.T) {
	client := newFakeClient(
		node{id: "1", author: "alice", posted: at(26, 9), body: tiptapBody("batch one"),
			children: []node{{id: "11", author: "bob", body: tiptapBody("crit")}}},
		node{id: "2", author: "bob", posted: at(26, 9), body: tiptapBody("batch two"),
			children: []node{{id: "21", author: "carol", body: model.RawBody{Kind: "unknown"}}}},
		node{id: "3", author: "carol", posted: at(26, 9), body: tiptapBody("batch three"),
			children: []node{{id: "31", author: "dave", body: tiptapBody("lost")}}},
	)
	client.failReplies["3"] = driven.ErrResponse
	writer := &fakeWriter{}
	svc := application.NewCritiqueService(client, writer, nil, nil)

	summary, err := svc.Run(context.Background(), launchURL, application.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []model.CommentID{"11"}, critiqueIDs(writer.records))
	assert.Equal(t, 3, summary.Batches)
	assert.Equal(t, 1, summary.FetchFailures)
	assert.Equal(t, 1, summary.ParseFailures)
	assert.Equal(t, 2, summary.Skipped())
}

func TestRun_EmptyCritiquesAreCounted(t *testing.T) {
	client := newFakeClient(node{
		id: "1", author: "alice", posted: at(26, 9), body: tiptapBody("batch"),
		children: []node{
			{id: "11", author: "bob", body: tiptapBody("")},
			{id: "12", author: "carol", body: tiptapBody("text")},
		},
	})
	writer := &fakeWriter{}
	svc := application.NewCritiqueService(client, writer, nil, nil)

	summary, err := svc.Run(context.Background(), launchURL, application.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Critiques)
	assert.Equal(t, 1, summary.ValidCritiques)
	assert.Equal(t, 1, summary.EmptyCritiques)
}

func TestRun_CasualTopLevelChatterIsNotABatch(t *testing.T) {
	client := newFakeClient(node{
		id: "1", author: "dave", posted: at(26, 9), body: tiptapBody("Merry Christmas everyone!"),
		children: []node{{id: "11", author: "erin", posted: at(26, 10), body: tiptapBody("Thanks, you too!")}},
	})
	writer := &fakeWriter{}
	svc := application.NewCritiqueService(client, writer, nil, nil)

	summary, err := svc.Run(context.Background(), launchURL, application.RunOptions{StartDate: startDate})
	require.NoError(t, err)

	assert.Empty(t, writer.records)
	assert.Zero(t, summary.Batches)
	assert.Zero(t, summary.Critiques)
	assert.Zero(t, client.callCount("replies:1:0"))
}

func TestRun_DeletedLinkedCritiqueCountsAsEmpty(t *testing.T) {
	client := newFakeClient(
		node{id: "1", author: "alice", posted: at(26, 9), body: tiptapRuns(
			[]textRun{{text: "my crits", href: commentURL("50").String()}},
			[]textRun{{text: "and", href: commentURL("999").String()}},
		)},
		node{id: "50", author: "erin", posted: at(26, 8), body: tiptapBody("Nice values")},
	)
	writer := &fakeWriter{}
	svc := application.NewCritiqueService(client, writer, nil, nil)

	summary, err := svc.Run(context.Background(), launchURL, application.RunOptions{StartDate: startDate})
	require.NoError(t, err)

	assert.Equal(t, []model.CommentID{"50", "999"}, critiqueIDs(writer.records))
	assert.Empty(t, writer.records[1].Author)
	assert.Equal(t, 2, summary.Critiques)
	assert.Equal(t, 1, summary.ValidCritiques)
	assert.Equal(t, 1, summary.EmptyCritiques)
	assert.Zero(t, summary.FetchFailures)
}

func TestRun_StoreFailureKeepsReport(t *testing.T) {
	client := newFakeClient(node{
		id: "1", author: "alice", posted: at(26, 9), body: tiptapBody("batch"),
		children: []node{{id: "11", author: "bob", body: tiptapBody("crit")}},
	})
	writer := &fakeWriter{}
	store := &fakeStore{err: errors.New("database is locked")}
	svc := application.NewCritiqueService(client, writer, store, nil)

	summary, err := svc.Run(context.Background(), launchURL, application.RunOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, writer.calls)
	assert.Equal(t, 1, summary.Critiques)
	assert.Empty(t, store.records)
}

func TestRun_FatalErrors(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		setup   func(*fakeClient, *fakeWriter)
		wantErr error
		written bool
	}{
		{
			name:    "invalid launch URL",
			url:     "https://example.com/nope",
			wantErr: model.ErrInvalidDeviationURL,
		},
		{
			name:    "unsupported category",
			url:     "https://www.deviantart.com/critmas/status-update/100",
			wantErr: model.ErrUnsupportedCategory,
		},
		{
			name:    "launch post unreachable",
			url:     launchURL,
			setup:   func(c *fakeClient, _ *fakeWriter) { c.failTop = driven.ErrConnection },
			wantErr: driven.ErrConnection,
		},
		{
			name:    "write failure",
			url:     launchURL,
			setup:   func(_ *fakeClient, w *fakeWriter) { w.err = errors.New("disk full") },
			written: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newFakeClient(node{id: "1", author: "alice", posted: at(26, 9), body: tiptapBody("batch")})
			writer := &fakeWriter{}
			if tc.setup != nil {
				tc.setup(client, writer)
			}
			svc := application.NewCritiqueService(client, writer, nil, nil)

			_, err := svc.Run(context.Background(), tc.url, application.RunOptions{})

			require.Error(t, err)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
			if tc.written {
				assert.True(t, strings.Contains(err.Error(), "write report"))
			} else {
				assert.Zero(t, writer.calls)
			}
		})
	}
}

func TestRun_CancelledWritesNothing(t *testing.T) {
	client := newFakeClient(node{
		id: "1", author: "alice", posted: at(26, 9), body: tiptapBody("batch"),
		children: []node{{id: "11", author: "bob", body: tiptapBody("crit")}},
	})
	writer := &fakeWriter{}
	svc := application.NewCritiqueService(client, writer, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Run(ctx, launchURL, application.RunOptions{})

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, writer.calls)
}

func TestAssemble_FirstSeenWins(t *testing.T) {
	batches := []model.CritiqueBatch{batchOf("1", "alice"), batchOf("2", "bob"), batchOf("3", "carol")}
	rec := func(batch, crit string, words int) model.CritiqueRecord {
		return model.CritiqueRecord{BatchURL: commentURL(batch), CritiqueURL: commentURL(crit), Words: words}
	}

	got, dropped := application.Assemble(batches, [][]model.CritiqueRecord{
		{rec("1", "11", 5), rec("1", "12", 6), rec("1", "11", 99)},
		nil,
		{rec("3", "12", 42), rec("3", "31", 7)},
	})

	want := []model.CritiqueRecord{rec("1", "11", 5), rec("1", "12", 6), rec("3", "31", 7)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("assembled mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, dropped)
}
