/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/apnabank/corebank/config"
	"github.com/apnabank/corebank/internal/apierror"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

var tracer = otel.Tracer("corebank.database")

// queryer is the subset of *sql.DB and *sql.Tx the repositories need.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// Datasource is the Postgres implementation of IDataSource. A Datasource
// handed to a WithTx callback carries the open transaction.
type Datasource struct {
	Conn *sql.DB
	tx   *sql.Tx
}

// NewDataSource returns the data source selected by the configured driver.
func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	if configuration.DataSource.Driver == config.DriverMemory {
		return NewMemoryDataSource(), nil
	}
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, errors.New("database connection was not initialized")
	}
	return instance, nil
}

// ConnectDB opens and pings a Postgres pool. Schema changes are applied by the migrate command.
func ConnectDB(cnf config.DataSourceConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cnf.Dns)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cnf.MaxOpenConns)
	db.SetMaxIdleConns(cnf.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cnf.ConnMaxLifetimeMinute) * time.Minute)

	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	return db, nil
}

func (d Datasource) db() queryer {
	if d.tx != nil {
		return d.tx
	}
	return d.Conn
}

// forUpdate locks selected rows when the read runs inside a unit of work.
func (d Datasource) forUpdate() string {
	if d.tx != nil {
		return " FOR UPDATE"
	}
	return ""
}

func (d Datasource) WithTx(ctx context.Context, fn func(ctx context.Context, tx IDataSource) error) error {
	if d.tx != nil {
		return fn(ctx, d)
	}

	ctx, span := tracer.Start(ctx, "WithTx")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}

	if err := fn(ctx, Datasource{Conn: d.Conn, tx: tx}); err != nil {
		_ = tx.Rollback()
		span.RecordError(err)
		return err
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return nil
}

// dbError maps driver errors onto API errors. what names the entity for the message.
func dbError(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("%s not found", what), err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("%s already exists", what), err)
		case "foreign_key_violation":
			return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("%s references a record that does not exist", what), err)
		case "check_violation":
			return apierror.NewAPIError(apierror.ErrInvalidState, fmt.Sprintf("%s violates a constraint", what), err)
		case "serialization_failure", "deadlock_detected":
			return apierror.NewAPIError(apierror.ErrConflict, "Concurrent update detected, please retry", err)
		default:
			return apierror.NewAPIError(apierror.ErrInternalServer, "Database error occurred", err)
		}
	}
	return apierror.NewAPIError(apierror.ErrInternalServer, fmt.Sprintf("Failed to access %s", what), err)
}

// expectOneRow turns an update that matched nothing into a version conflict.
func expectOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if n == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("%s was modified concurrently", what), nil)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
