package fake

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgproto3/v2"
	"github.com/jackc/pgx/v4"

	kpool "github.com/opst/trackfab/pkg/conn/db/postgres/pool"
)

// Fakes of pool types, for tests without a database.
//
// Each Next* field is returned by the method it names, once,
// and then reset to its zero value.

type FakePool struct {
	NextBegin struct {
		Tx  kpool.Tx
		Err error
	}
	NextAcquire struct {
		Conn kpool.Conn
		Err  error
	}
	NextPing error
}

var _ kpool.Pool = &FakePool{}

// parameter v is never read/overwritten. just a represent value of type T.
func zero[T any](T) T {
	return *new(T)
}

func (p *FakePool) Begin(ctx context.Context) (kpool.Tx, error) {
	defer func() {
		p.NextBegin = zero(p.NextBegin)
		p.NextBegin.Tx = &FakeTx{}
	}()
	return p.NextBegin.Tx, p.NextBegin.Err
}

func (p *FakePool) Acquire(ctx context.Context) (kpool.Conn, error) {
	defer func() {
		p.NextAcquire = zero(p.NextAcquire)
		p.NextAcquire.Conn = &FakeConn{}
	}()
	return p.NextAcquire.Conn, p.NextAcquire.Err
}

func (p *FakePool) Ping(ctx context.Context) error {
	defer func() {
		p.NextPing = zero(p.NextPing)
	}()
	return p.NextPing
}

type FakeTx struct {
	NextBegin struct {
		Tx  kpool.Tx
		Err error
	}
	NextCommit   error
	NextRollback error
	NextExec     struct {
		CommandTag pgconn.CommandTag
		Err        error
	}
	NextQuery struct {
		Rows pgx.Rows
		Err  error
	}
	NextQueryRow pgx.Row
}

var _ kpool.Tx = &FakeTx{}

func (tx *FakeTx) Begin(ctx context.Context) (kpool.Tx, error) {
	defer func() {
		tx.NextBegin = zero(tx.NextBegin)
		tx.NextBegin.Tx = &FakeTx{}
	}()
	return tx.NextBegin.Tx, tx.NextBegin.Err
}

func (tx *FakeTx) Commit(ctx context.Context) error {
	defer func() {
		tx.NextCommit = zero(tx.NextCommit)
	}()
	return tx.NextCommit
}

func (tx *FakeTx) Rollback(ctx context.Context) error {
	defer func() {
		tx.NextRollback = zero(tx.NextRollback)
	}()
	return tx.NextRollback
}

func (tx *FakeTx) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	defer func() {
		tx.NextExec = zero(tx.NextExec)
	}()
	return tx.NextExec.CommandTag, tx.NextExec.Err
}

func (tx *FakeTx) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	defer func() {
		tx.NextQuery = zero(tx.NextQuery)
	}()
	return tx.NextQuery.Rows, tx.NextQuery.Err
}

func (tx *FakeTx) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	defer func() {
		tx.NextQueryRow = zero(tx.NextQueryRow)
	}()
	return tx.NextQueryRow
}

type FakeConn struct {
	NextBegin struct {
		Tx  kpool.Tx
		Err error
	}
	NextExec struct {
		CommandTag pgconn.CommandTag
		Err        error
	}
	NextQuery struct {
		Rows pgx.Rows
		Err  error
	}
	NextQueryRow pgx.Row
	NextPing     error
}

var _ kpool.Conn = &FakeConn{}

func (c *FakeConn) Begin(ctx context.Context) (kpool.Tx, error) {
	defer func() {
		c.NextBegin = zero(c.NextBegin)
		c.NextBegin.Tx = &FakeTx{}
	}()
	return c.NextBegin.Tx, c.NextBegin.Err
}

func (c *FakeConn) Release() {
}

func (c *FakeConn) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	defer func() {
		c.NextExec = zero(c.NextExec)
	}()
	return c.NextExec.CommandTag, c.NextExec.Err
}

func (c *FakeConn) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	defer func() {
		c.NextQuery = zero(c.NextQuery)
	}()
	return c.NextQuery.Rows, c.NextQuery.Err
}

func (c *FakeConn) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	defer func() {
		c.NextQueryRow = zero(c.NextQueryRow)
	}()
	return c.NextQueryRow
}

func (c *FakeConn) Ping(ctx context.Context) error {
	defer func() {
		c.NextPing = zero(c.NextPing)
	}()
	return c.NextPing
}

// FakeRow is a pgx.Row scanning out fixed values.
type FakeRow struct {
	Values []any
	Err    error
}

var _ pgx.Row = &FakeRow{}

func (r *FakeRow) Scan(dest ...interface{}) error {
	if r.Err != nil {
		return r.Err
	}
	return scanInto(dest, r.Values)
}

// FakeRows is a pgx.Rows iterating over fixed rows.
type FakeRows struct {
	Rows  [][]any
	Error error

	pos    int
	closed bool
}

var _ pgx.Rows = &FakeRows{}

func (r *FakeRows) Next() bool {
	if r.closed || len(r.Rows) <= r.pos {
		r.closed = true
		return false
	}
	r.pos += 1
	return true
}

func (r *FakeRows) Scan(dest ...interface{}) error {
	if r.pos == 0 || len(r.Rows) < r.pos {
		return fmt.Errorf("no row to scan")
	}
	return scanInto(dest, r.Rows[r.pos-1])
}

func (r *FakeRows) Values() ([]interface{}, error) {
	if r.pos == 0 || len(r.Rows) < r.pos {
		return nil, fmt.Errorf("no row to read")
	}
	return r.Rows[r.pos-1], nil
}

func (r *FakeRows) Close() {
	r.closed = true
}

func (r *FakeRows) Err() error {
	return r.Error
}

func (r *FakeRows) CommandTag() pgconn.CommandTag {
	return nil
}

func (r *FakeRows) FieldDescriptions() []pgproto3.FieldDescription {
	return nil
}

func (r *FakeRows) RawValues() [][]byte {
	return nil
}

func scanInto(dest []interface{}, values []any) error {
	for i, d := range dest {
		if len(values) <= i {
			return nil
		}
		if err := assign(d, values[i]); err != nil {
			return err
		}
	}
	return nil
}

func assign(dest any, value any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("scan destination is not a pointer: %#v", dest)
	}
	ev := dv.Elem()

	if value == nil {
		ev.Set(reflect.Zero(ev.Type()))
		return nil
	}

	vv := reflect.ValueOf(value)
	switch {
	case vv.Type().AssignableTo(ev.Type()):
		ev.Set(vv)
	case vv.Type().ConvertibleTo(ev.Type()):
		ev.Set(vv.Convert(ev.Type()))
	case ev.Kind() == reflect.Pointer && vv.Type().AssignableTo(ev.Type().Elem()):
		p := reflect.New(ev.Type().Elem())
		p.Elem().Set(vv)
		ev.Set(p)
	default:
		return fmt.Errorf("cannot scan %T into %T", value, dest)
	}
	return nil
}
