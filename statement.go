package corebank

import (
	"bytes"
	"context"
	"time"

	"github.com/apnabank/corebank/internal/apierror"
	"github.com/apnabank/corebank/internal/archive"
	"github.com/apnabank/corebank/model"
)

// Statement replays the history of an account over [from, to]. It never writes.
func (b *Bank) Statement(ctx context.Context, accountNumber string, from, to time.Time) (*model.Statement, error) {
	ctx, span := tracer.Start(ctx, "Statement")
	defer span.End()

	if to.Before(from) {
		return nil, apierror.NewAPIError(apierror.ErrValidation, "statement end must not be before its start", nil)
	}
	if _, err := b.datasource.GetAccount(ctx, accountNumber); err != nil {
		return nil, err
	}

	history, err := b.datasource.ListAccountTransactions(ctx, accountNumber, to)
	if err != nil {
		return nil, err
	}
	st := model.BuildStatement(accountNumber, from, to, history)
	return &st, nil
}

// ExportStatement renders the statement as CSV and archives it, returning
// where the document was stored.
func (b *Bank) ExportStatement(ctx context.Context, accountNumber string, from, to time.Time) (string, error) {
	ctx, span := tracer.Start(ctx, "ExportStatement")
	defer span.End()

	if b.archiver == nil {
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "statement archive is not configured", nil)
	}

	st, err := b.Statement(ctx, accountNumber, from, to)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := archive.WriteStatementCSV(&buf, *st); err != nil {
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "failed to render statement", err)
	}
	return b.archiver.Archive(ctx, archive.StatementKey(*st), &buf, archive.ContentTypeCSV)
}
