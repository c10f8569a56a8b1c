package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/cenkalti/backoff/v4"
	"restorable.io/restorable-home/internal/version"
)

// Retrying retries operations on the wrapped storage in case of an error
// with an exponential backoff.
type Retrying struct {
	Storage
	MaxElapsedTime  time.Duration
	InitialInterval time.Duration
	Report          func(string, error, time.Duration)
}

// NewRetrying wraps s with a storage that retries operations for at most
// maxElapsedTime. report is called with a description and the error
// before each retry.
func NewRetrying(s Storage, maxElapsedTime time.Duration, report func(string, error, time.Duration)) *Retrying {
	return &Retrying{
		Storage:        s,
		MaxElapsedTime: maxElapsedTime,
		Report:         report,
	}
}

func (r *Retrying) retry(ctx context.Context, msg string, f func() error) error {
	// Don't do anything when called with an already cancelled context.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = r.MaxElapsedTime
	if r.InitialInterval > 0 {
		bo.InitialInterval = r.InitialInterval
	}

	op := func() error {
		err := f()
		// Missing objects and invalid ids do not heal on their own.
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, ErrInvalidArchiveID) {
			return backoff.Permanent(err)
		}
		return err
	}
	var notify backoff.Notify
	if r.Report != nil {
		notify = func(err error, d time.Duration) {
			r.Report(msg, err, d)
		}
	}
	return backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify)
}

func (r *Retrying) VersionInfo(ctx context.Context) (version.Version, error) {
	var v version.Version
	err := r.retry(ctx, "VersionInfo", func() error {
		var err error
		v, err = r.Storage.VersionInfo(ctx)
		return err
	})
	return v, err
}

func (r *Retrying) FindLatestBackup(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.retry(ctx, "FindLatestBackup", func() error {
		var err error
		ids, err = r.Storage.FindLatestBackup(ctx)
		return err
	})
	return ids, err
}

func (r *Retrying) ListMetadataForExistingFiles(ctx context.Context) ([]string, error) {
	var names []string
	err := r.retry(ctx, "ListMetadataForExistingFiles", func() error {
		var err error
		names, err = r.Storage.ListMetadataForExistingFiles(ctx)
		return err
	})
	return names, err
}

func (r *Retrying) LoadFile(ctx context.Context, archiveID, destPath string) error {
	return r.retry(ctx, fmt.Sprintf("LoadFile(%s)", archiveID), func() error {
		return r.Storage.LoadFile(ctx, archiveID, destPath)
	})
}
