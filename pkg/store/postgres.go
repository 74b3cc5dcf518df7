/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/FLEET/pkg/config"
	commonerrors "github.com/AMD-AIG-AIMA/FLEET/pkg/errors"
)

// postgresStore backs the Store interface with PostgreSQL. The sqlx
// pool serves list queries; gorm serves transactional entity work. A
// view created by Atomic reuses a single gorm transaction and takes
// FOR UPDATE locks on entity reads.
type postgresStore struct {
	db   *sqlx.DB
	gorm *gorm.DB
	cfg  *DBConfig
	inTx bool
}

// NewPostgresStore connects to the configured database and returns the
// production Store.
func NewPostgresStore() (Store, error) {
	cfg := &DBConfig{
		DBName:         config.GetDBName(),
		Username:       config.GetDBUser(),
		Password:       config.GetDBPassword(),
		Host:           config.GetDBHost(),
		Port:           config.GetDBPort(),
		SSLMode:        config.GetDBSslMode(),
		MaxOpenConns:   config.GetDBMaxOpenConns(),
		MaxIdleConns:   config.GetDBMaxIdleConns(),
		MaxLifetime:    time.Duration(config.GetDBMaxLifetimeSecond()) * time.Second,
		MaxIdleTime:    time.Duration(config.GetDBMaxIdleTimeSecond()) * time.Second,
		ConnectTimeout: config.GetDBConnectTimeoutSecond(),
		RequestTimeout: time.Duration(config.GetDBRequestTimeoutSecond()) * time.Second,
	}
	if err := checkParams(cfg); err != nil {
		return nil, err
	}
	db, err := Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %v", err)
	}
	gormDB, err := ConnectGorm(cfg)
	if err != nil {
		return nil, err
	}
	klog.Infof("init store successfully! conn-timeout: %d(s), request-timeout: %v",
		cfg.ConnectTimeout, cfg.RequestTimeout)
	return &postgresStore{db: db, gorm: gormDB, cfg: cfg}, nil
}

func checkParams(cfg *DBConfig) error {
	var errs []error
	if cfg.DBName == "" {
		errs = append(errs, fmt.Errorf("dbname not found"))
	}
	if cfg.Username == "" {
		errs = append(errs, fmt.Errorf("username not found"))
	}
	if cfg.Password == "" {
		errs = append(errs, fmt.Errorf("password not found"))
	}
	if cfg.Host == "" {
		errs = append(errs, fmt.Errorf("host not found"))
	}
	if cfg.SSLMode == "" {
		errs = append(errs, fmt.Errorf("ssl_mode not found"))
	}
	if cfg.Port == 0 {
		errs = append(errs, fmt.Errorf("port not found"))
	}
	return utilerrors.NewAggregate(errs)
}

// Close releases the underlying connection pool.
func (s *postgresStore) Close() {
	if s.db == nil {
		return
	}
	if err := s.db.Close(); err != nil {
		klog.ErrorS(err, "failed to close db connection")
	}
}

// Atomic runs fn inside one gorm transaction. The view handed to fn
// routes every query through the transaction connection.
func (s *postgresStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	return s.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		view := &postgresStore{gorm: tx, cfg: s.cfg, inTx: true}
		return fn(ctx, view)
	})
}

// orm returns the gorm handle for the current scope.
func (s *postgresStore) orm(ctx context.Context) *gorm.DB {
	if s.inTx {
		return s.gorm
	}
	return s.gorm.WithContext(ctx)
}

// locked adds FOR UPDATE inside a transaction so concurrent transitions
// on the same entity serialize on the row lock.
func (s *postgresStore) locked(tx *gorm.DB) *gorm.DB {
	if s.inTx {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func (s *postgresStore) notFound(err error, kind, name string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return commonerrors.NewNotFound(kind, name)
	}
	return err
}
