package pgcells

import (
	"context"
	"regexp"
	"testing"
	"time"

	pgxmockv3 "github.com/pashagolub/pgxmock/v3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-courier-orders/internal/store"
)

func newMockStore(t *testing.T) (*Store, pgxmockv3.PgxConnIface) {
	t.Helper()
	mock, err := pgxmockv3.NewConn()
	require.NoError(t, err)
	return New(mock), mock
}

const (
	selectCells    = `SELECT family, qualifier, value, ts FROM "orders_cells" WHERE row_key = $1`
	selectFamilies = `SELECT family FROM "orders_families"`
)

func expectFamilies(mock pgxmockv3.PgxConnIface, families ...string) {
	rows := pgxmockv3.NewRows([]string{"family"})
	for _, f := range families {
		rows.AddRow(f)
	}
	mock.ExpectQuery(regexp.QuoteMeta(selectFamilies)).WillReturnRows(rows)
}

func TestDialWithoutDSN(t *testing.T) {
	_, err := Dialer{}.Dial(context.Background())
	assert.ErrorIs(t, err, store.ErrNotConfigured)
}

func TestGetRow(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectCells)).
		WithArgs("42").
		WillReturnRows(pgxmockv3.NewRows([]string{"family", "qualifier", "value", "ts"}).
			AddRow("ids", "c_id", []byte("c1"), int64(5)).
			AddRow("info", "state", []byte("Created"), int64(6)))

	row, err := s.GetRow(context.Background(), "orders", "42")
	require.NoError(t, err)
	assert.Equal(t, []byte("42"), row.Key)
	assert.Equal(t, store.Cell{Value: []byte("c1"), Timestamp: 5}, row.Columns["ids:c_id"])
	assert.Equal(t, []byte("Created"), row.Columns["info:state"].Value)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRowNoCellsIsNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectCells)).
		WithArgs("99").
		WillReturnRows(pgxmockv3.NewRows([]string{"family", "qualifier", "value", "ts"}))

	_, err := s.GetRow(context.Background(), "orders", "99")
	var nf *store.RowNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "99", nf.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRowQueryError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectCells)).
		WithArgs("42").
		WillReturnError(errors.New("connection reset"))

	_, err := s.GetRow(context.Background(), "orders", "42")
	var db *store.DBError
	require.True(t, errors.As(err, &db))
	assert.Equal(t, "get", db.Op)
}

func TestPutUpsertsEveryCellInOneTx(t *testing.T) {
	s, mock := newMockStore(t)
	ts := time.UnixMilli(1234)

	mock.ExpectBegin()
	expectFamilies(mock, "info", "ids")
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "orders_cells"`)).
		WithArgs("42", "info", "state", []byte("OutForDelivery"), int64(1234)).
		WillReturnResult(pgxmockv3.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "orders_cells"`)).
		WithArgs("42", "info", "o_id", []byte("42"), int64(1234)).
		WillReturnResult(pgxmockv3.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.Put(context.Background(), "orders", []store.RowMutation{{
		Key: "42",
		Mutations: []store.Mutation{
			{Family: "info", Qualifier: "state", Value: []byte("OutForDelivery")},
			{Family: "info", Qualifier: "o_id", Value: []byte("42")},
		},
	}}, ts)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	expectFamilies(mock, "info")
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "orders_cells"`)).
		WithArgs("42", "info", "state", []byte("Delivered"), pgxmockv3.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.Put(context.Background(), "orders", []store.RowMutation{{
		Key:       "42",
		Mutations: []store.Mutation{{Family: "info", Qualifier: "state", Value: []byte("Delivered")}},
	}}, time.Now())

	var db *store.DBError
	require.True(t, errors.As(err, &db))
	assert.Equal(t, "put", db.Op)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutRejectsUnknownFamily(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	expectFamilies(mock, "info", "ids")
	mock.ExpectRollback()

	err := s.Put(context.Background(), "orders", []store.RowMutation{{
		Key:       "42",
		Mutations: []store.Mutation{{Family: "bogus", Qualifier: "x", Value: []byte("1")}},
	}}, time.Now())

	var db *store.DBError
	require.True(t, errors.As(err, &db))
	assert.Contains(t, err.Error(), `unknown column family "bogus"`)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutWithoutTableIsDBError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(selectFamilies)).
		WillReturnError(errors.New(`relation "orders_families" does not exist`))
	mock.ExpectRollback()

	err := s.Put(context.Background(), "orders", []store.RowMutation{{
		Key:       "42",
		Mutations: []store.Mutation{{Family: "info", Qualifier: "state", Value: []byte("Created")}},
	}}, time.Now())

	var db *store.DBError
	require.True(t, errors.As(err, &db))
	assert.Equal(t, "put", db.Op)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTable(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "orders_cells"`)).
		WillReturnResult(pgxmockv3.NewResult("CREATE", 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "orders_families"`)).
		WillReturnResult(pgxmockv3.NewResult("CREATE", 0))
	for _, f := range []string{"info", "ids"} {
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "orders_families"`)).
			WithArgs(f).
			WillReturnResult(pgxmockv3.NewResult("INSERT", 1))
	}

	require.NoError(t, s.CreateTable(context.Background(), "orders", []string{"info", "ids"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTableError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "orders_cells"`)).
		WillReturnError(errors.New("permission denied"))

	err := s.CreateTable(context.Background(), "orders", []string{"info"})
	var db *store.DBError
	require.True(t, errors.As(err, &db))
}
