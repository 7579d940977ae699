package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
)

var mappingCols = []string{
	"job_id", "task_type", "task_id", "relative_path", "save_path", "method",
	"file_count", "has_parse_file", "status", "updated_at",
}

func sampleMapping(now time.Time) retrieval.TaskMapping {
	return retrieval.TaskMapping{
		JobID:        "SL42",
		TaskType:     "AmazonReviewStarJob",
		TaskID:       "123456789012345678",
		RelativePath: "./AmazonReviewStarJob/123456789012345678/",
		SavePath:     "downloads/AmazonReviewStarJob/123456789012345678",
		Method:       retrieval.MethodPrecisePath,
		FileCount:    1,
		HasParseFile: true,
		Status:       retrieval.StatusCompleted,
		UpdatedAt:    now,
	}
}

func TestRecordMappingUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewMappingStoreWithPool(mock, "task_mappings")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	m := sampleMapping(now)

	mock.ExpectExec("INSERT INTO task_mappings").
		WithArgs(
			m.JobID,
			m.TaskType,
			m.TaskID,
			m.RelativePath,
			m.SavePath,
			"precise_path",
			m.FileCount,
			m.HasParseFile,
			m.Status,
			now,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordMapping(context.Background(), m))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordMappingRequiresJobID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewMappingStoreWithPool(mock, "")
	require.NoError(t, err)
	require.Error(t, store.RecordMapping(context.Background(), retrieval.TaskMapping{}))
}

func TestRecordMappingPropagatesExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewMappingStoreWithPool(mock, "task_mappings")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO task_mappings").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("boom"))

	err = store.RecordMapping(context.Background(), sampleMapping(time.Now().UTC()))
	require.ErrorContains(t, err, "upsert mapping")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMapping(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewMappingStoreWithPool(mock, "task_mappings")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	m := sampleMapping(now)
	mock.ExpectQuery("SELECT .* FROM task_mappings WHERE job_id").
		WithArgs("SL42").
		WillReturnRows(pgxmock.NewRows(mappingCols).AddRow(
			m.JobID, m.TaskType, m.TaskID, m.RelativePath, m.SavePath, "precise_path",
			m.FileCount, m.HasParseFile, m.Status, now,
		))

	got, err := store.GetMapping(context.Background(), "SL42")
	require.NoError(t, err)
	require.Equal(t, m, got)

	mock.ExpectQuery("SELECT .* FROM task_mappings WHERE job_id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	_, err = store.GetMapping(context.Background(), "missing")
	require.ErrorIs(t, err, retrieval.ErrMappingNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListMappings(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewMappingStoreWithPool(mock, "task_mappings")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT .* FROM task_mappings ORDER BY job_id").
		WillReturnRows(pgxmock.NewRows(mappingCols).
			AddRow("A1", "T", "1", "./T/1/", "d/T/1", "direct_link", 1, true, "completed", now).
			AddRow("B2", "T", "2", "./T/2/", "d/T/2", "", 0, false, "failed", now))

	list, err := store.ListMappings(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, retrieval.MethodDirectLink, list[0].Method)
	require.Equal(t, retrieval.StatusFailed, list[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewMappingStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewMappingStore(context.Background(), MappingStoreConfig{})
	require.ErrorContains(t, err, "bookkeeping.dsn")

	_, err = NewMappingStoreWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewMappingStoreWithPool(mock, "bad;table")
	require.ErrorContains(t, err, "invalid table name")
}

func TestPing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewMappingStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	require.ErrorContains(t, store.Ping(context.Background()), "ping postgres")
	require.NoError(t, mock.ExpectationsWereMet())
}
