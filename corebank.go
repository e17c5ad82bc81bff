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

package corebank

import (
	"context"
	"embed"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/apnabank/corebank/config"
	"github.com/apnabank/corebank/database"
	"github.com/apnabank/corebank/internal/accountnumber"
	"github.com/apnabank/corebank/internal/apierror"
	"github.com/apnabank/corebank/internal/archive"
	"github.com/apnabank/corebank/internal/cache"
	"github.com/apnabank/corebank/internal/notification"
	"github.com/apnabank/corebank/model"
)

var tracer = otel.Tracer("corebank.service")

//go:embed sql/*.sql
var SQLFiles embed.FS

// Bank is the banking core. Every exported method runs as one unit of work
// against the datasource and publishes its lifecycle events after commit.
type Bank struct {
	datasource     database.IDataSource
	config         *config.Configuration
	cache          cache.Cache
	redis          redis.UniversalClient
	notifier       notification.Notifier
	archiver       archive.Archiver
	authorizer     Authorizer
	billers        BillerDirectory
	accountNumbers *accountnumber.Generator
	loanProducts   model.LoanProducts
	depositRates   model.DepositRates
	now            func() time.Time

	runMu sync.Mutex
}

// Option customizes a Bank built by NewBank.
type Option func(*Bank)

// WithRedis enables the Redis run-lock and the idempotency cache.
func WithRedis(client redis.UniversalClient) Option {
	return func(b *Bank) {
		b.redis = client
		b.cache = cache.NewCache(client)
	}
}

// WithCache overrides the idempotency cache.
func WithCache(c cache.Cache) Option {
	return func(b *Bank) { b.cache = c }
}

func WithNotifier(n notification.Notifier) Option {
	return func(b *Bank) { b.notifier = n }
}

func WithArchiver(a archive.Archiver) Option {
	return func(b *Bank) { b.archiver = a }
}

func WithAuthorizer(a Authorizer) Option {
	return func(b *Bank) { b.authorizer = a }
}

func WithBillerDirectory(d BillerDirectory) Option {
	return func(b *Bank) { b.billers = d }
}

// WithClock replaces the wall clock. Tests use it to pin "now".
func WithClock(now func() time.Time) Option {
	return func(b *Bank) { b.now = now }
}

func WithAccountNumberGenerator(g *accountnumber.Generator) Option {
	return func(b *Bank) { b.accountNumbers = g }
}

func WithLoanProducts(p model.LoanProducts) Option {
	return func(b *Bank) { b.loanProducts = p }
}

func WithDepositRates(r model.DepositRates) Option {
	return func(b *Bank) { b.depositRates = r }
}

// NewBank initializes a Bank over db using the loaded configuration.
//
// Parameters:
// - db database.IDataSource: The datasource for every unit of work.
// - opts ...Option: Collaborators replacing the defaults.
//
// Returns:
// - *Bank: The configured bank.
// - error: An error if the configuration has not been loaded.
func NewBank(db database.IDataSource, opts ...Option) (*Bank, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	b := &Bank{
		datasource:     db,
		config:         cnf,
		notifier:       notification.Nop{},
		authorizer:     NewStaticAuthorizer(cnf.Identity.AdminUserIDs),
		billers:        DefaultBillerDirectory(),
		accountNumbers: accountnumber.NewGenerator(0, cnf.Bank.AccountNumberMaxAttempts),
		loanProducts:   model.DefaultLoanProducts(),
		depositRates:   model.DefaultDepositRates(),
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *Bank) currency() string {
	if b.config.Bank.Currency == "" {
		return model.Currency
	}
	return b.config.Bank.Currency
}

// unit is one attempt at a unit of work. Events queue up on it and are only
// published when the attempt commits.
type unit struct {
	tx     database.IDataSource
	events []model.Event
	at     time.Time
}

func (u *unit) emit(eventType string, payload interface{}) {
	u.events = append(u.events, model.NewEvent(eventType, payload, u.at))
}

func (b *Bank) conflictBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 10 * time.Millisecond
	eb.MaxInterval = 200 * time.Millisecond
	eb.MaxElapsedTime = 0

	retries := b.config.Bank.ConflictRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

// inTx runs fn as one unit of work. CONFLICT errors restart the whole unit
// with backoff; every other error is returned as is.
func (b *Bank) inTx(ctx context.Context, fn func(ctx context.Context, u *unit) error) error {
	var committed *unit
	attempt := 0

	err := backoff.Retry(func() error {
		attempt++
		u := &unit{at: b.now()}
		err := b.datasource.WithTx(ctx, func(ctx context.Context, tx database.IDataSource) error {
			u.tx = tx
			return fn(ctx, u)
		})
		if err == nil {
			committed = u
			return nil
		}
		if apierror.IsCode(err, apierror.ErrConflict) {
			logrus.WithFields(logrus.Fields{"attempt": attempt, "error": err.Error()}).Warn("unit of work conflicted, retrying")
			return err
		}
		return backoff.Permanent(err)
	}, b.conflictBackOff(ctx))
	if err != nil {
		return err
	}

	b.publish(ctx, committed.events)
	return nil
}

func (b *Bank) publish(ctx context.Context, events []model.Event) {
	for _, event := range events {
		if err := b.notifier.Notify(ctx, event); err != nil {
			logrus.WithFields(logrus.Fields{"event": event.Type, "event_id": event.ID}).WithError(err).Error("failed to publish event")
		}
	}
}

func validationError(err error) error {
	return apierror.NewAPIError(apierror.ErrValidation, err.Error(), nil)
}

func invalidState(message string) error {
	return apierror.NewAPIError(apierror.ErrInvalidState, message, nil)
}

func notFound(message string) error {
	return apierror.NewAPIError(apierror.ErrNotFound, message, nil)
}

func (b *Bank) requireAdmin(ctx context.Context, userID string) error {
	ok, err := b.authorizer.IsAdmin(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apierror.NewAPIError(apierror.ErrAuthorization, "admin privileges are required", nil)
	}
	return nil
}
