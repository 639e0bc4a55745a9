package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/publication-harvester/internal/crawler"
)

func TestExistingTitlesScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTitleStore(mock, "", "")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT title FROM publications WHERE title IS NOT NULL").
		WillReturnRows(pgxmock.NewRows([]string{"title"}).AddRow("Graph Methods").AddRow("Open Data"))

	titles, err := store.ExistingTitles(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"Graph Methods", "Open Data"}, titles)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExistingTitlesQueryError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewTitleStore(mock, "papers", "name")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT name FROM papers").WillReturnError(errors.New("relation does not exist"))

	_, err = store.ExistingTitles(context.Background())
	require.ErrorContains(t, err, "query titles")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentifierValidation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewTitleStore(mock, "publications; DROP TABLE x", "title")
	require.Error(t, err)
	_, err = NewTitleStore(mock, "publications", "title--")
	require.Error(t, err)
	_, err = NewSessionStore(mock, "1sessions")
	require.Error(t, err)
	_, err = NewTitleStore(nil, "", "")
	require.Error(t, err)
}

func TestPublishSummaryInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSessionStore(mock, "")
	require.NoError(t, err)

	started := time.Unix(1700000000, 0).UTC()
	stats := crawler.Stats{
		SessionID:         "session-1",
		StartedAt:         started,
		FinishedAt:        started.Add(time.Minute),
		StopReason:        crawler.StopLastPage,
		TotalPublications: 12,
		Delivered:         10,
		Undelivered:       2,
		PagesVisited:      3,
		PagesFailed:       1,
		Skipped:           map[crawler.SkipReason]int{crawler.SkipAlreadyExists: 4},
	}

	mock.ExpectExec("INSERT INTO crawl_sessions").
		WithArgs(
			"session-1",
			stats.StartedAt,
			stats.FinishedAt,
			"last_page_reached",
			12,
			10,
			2,
			3,
			1,
			[]byte(`{"already_exists":4}`),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := store.PublishSummary(context.Background(), stats)
	require.NoError(t, err)
	require.Equal(t, "session-1", id)
	require.NoError(t, mock.ExpectationsWereMet())
}
