// Copyright 2024 The booster Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package caldb holds types to describe the calibration archive of a
// Booster installation: versioned per-channel calibration records keyed
// by the RF module's EUI-48 identity. The firmware path never requires
// the archive; the calibration tool uses it to keep history.
package caldb // import "github.com/b787abel/booster/caldb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/b787abel/booster/rf"
)

const (
	host = "localhost"
)

var (
	usr = "booster"
	pwd = "s3cr3t"

	drvName = "mysql"
)

// Calibration is one archived calibration record of an RF module.
type Calibration struct {
	ID  int64
	EUI string // module EUI-48, aa:bb:cc:dd:ee:ff

	BiasVoltage        float64
	OutputThreshold    float64
	ReflectedThreshold float64

	Input     rf.LinearTransformation
	Output    rf.LinearTransformation
	Reflected rf.LinearTransformation

	CreatedAt time.Time
}

// DB exposes convenience methods to retrieve and archive calibration
// records from the Booster calibration database.
type DB struct {
	db   *sql.DB
	name string
}

// Open opens a connection to the calibration database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("caldb: could not open %q db: %w", dbname, err)
	}

	if err := ping(db, dbname); err != nil {
		return nil, fmt.Errorf("caldb: could not ping %q db: %w", dbname, err)
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("caldb: could not ping %q db: %w", dbname, err)
	}
	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

const calColumns = `
identifier, eui, bias_voltage,
output_threshold, reflected_threshold,
input_slope, input_offset,
output_slope, output_offset,
reflected_slope, reflected_offset,
created_at`

// LastCalibration returns the most recent calibration record of the
// module with the given EUI-48.
func (db *DB) LastCalibration(ctx context.Context, eui string) (Calibration, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var cal Calibration
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT"+calColumns+` FROM calibrations
WHERE eui=? ORDER BY created_at DESC LIMIT 1`,
		eui,
	)
	if err != nil {
		return cal, fmt.Errorf("caldb: could not query calibration: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		if err := scanCalibration(rows, &cal); err != nil {
			return cal, fmt.Errorf("caldb: could not scan calibration: %w", err)
		}
		n++
	}

	if err := rows.Err(); err != nil {
		return cal, fmt.Errorf("caldb: could not scan db for calibration: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return cal, fmt.Errorf("caldb: context error while retrieving calibration: %w", err)
	}
	if n == 0 {
		return cal, fmt.Errorf("caldb: no calibration for module %q", eui)
	}

	return cal, nil
}

// Calibrations returns the full calibration history of the module with
// the given EUI-48, most recent first.
func (db *DB) Calibrations(ctx context.Context, eui string) ([]Calibration, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var cals []Calibration
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT"+calColumns+` FROM calibrations
WHERE eui=? ORDER BY created_at DESC`,
		eui,
	)
	if err != nil {
		return nil, fmt.Errorf("caldb: could not query calibrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cal Calibration
		if err := scanCalibration(rows, &cal); err != nil {
			return cals, fmt.Errorf("caldb: could not scan calibration: %w", err)
		}
		cals = append(cals, cal)
	}

	if err := rows.Err(); err != nil {
		return cals, fmt.Errorf("caldb: could not scan db for calibrations: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return cals, fmt.Errorf("caldb: context error while retrieving calibrations: %w", err)
	}

	return cals, nil
}

// StoreCalibration archives a calibration record and returns its new
// identifier. Records are never updated in place: the archive is
// append-only and versioned by insertion time.
func (db *DB) StoreCalibration(ctx context.Context, cal Calibration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := db.db.ExecContext(
		ctx,
		`INSERT INTO calibrations (
eui, bias_voltage,
output_threshold, reflected_threshold,
input_slope, input_offset,
output_slope, output_offset,
reflected_slope, reflected_offset,
created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cal.EUI, cal.BiasVoltage,
		cal.OutputThreshold, cal.ReflectedThreshold,
		cal.Input.Slope, cal.Input.Offset,
		cal.Output.Slope, cal.Output.Offset,
		cal.Reflected.Slope, cal.Reflected.Offset,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("caldb: could not store calibration for %q: %w", cal.EUI, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("caldb: could not get calibration id: %w", err)
	}
	return id, nil
}

func scanCalibration(rows *sql.Rows, cal *Calibration) error {
	return rows.Scan(
		&cal.ID, &cal.EUI, &cal.BiasVoltage,
		&cal.OutputThreshold, &cal.ReflectedThreshold,
		&cal.Input.Slope, &cal.Input.Offset,
		&cal.Output.Slope, &cal.Output.Offset,
		&cal.Reflected.Slope, &cal.Reflected.Offset,
		&cal.CreatedAt,
	)
}
