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

package accountnumber

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/apnabank/corebank/internal/apierror"
)

const (
	// Length is the number of digits in an account number.
	Length = 12
	// DefaultMaxAttempts bounds how many candidates are drawn before giving up.
	DefaultMaxAttempts = 10
	// numberSpace is the count of 12-digit numbers with a non-zero first digit.
	numberSpace = 9e11
)

// Index answers whether an account number is already taken.
type Index interface {
	AccountNumberExists(ctx context.Context, number string) (bool, error)
	CountAccounts(ctx context.Context) (int64, error)
}

// Generator draws random account numbers and re-rolls collisions a bounded
// number of times.
type Generator struct {
	mu          sync.Mutex
	rnd         *rand.Rand
	maxAttempts int
}

// NewGenerator returns a generator seeded from seed. A zero seed uses the clock.
func NewGenerator(seed int64, maxAttempts int) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Generator{rnd: rand.New(rand.NewSource(seed)), maxAttempts: maxAttempts}
}

// Candidate draws one number without consulting any index.
func (g *Generator) Candidate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	buf := make([]byte, 0, Length)
	buf = strconv.AppendInt(buf, int64(1+g.rnd.Intn(9)), 10)
	for i := 1; i < Length; i++ {
		buf = strconv.AppendInt(buf, int64(g.rnd.Intn(10)), 10)
	}
	return string(buf)
}

// Generate returns a number not present in index, or an EXHAUSTED error once
// maxAttempts candidates have all collided.
func (g *Generator) Generate(ctx context.Context, index Index) (string, error) {
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		candidate := g.Candidate()
		exists, err := index.AccountNumberExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		g.logCollision(ctx, index, candidate, attempt)
	}
	return "", apierror.NewAPIError(apierror.ErrExhausted, "could not allocate a unique account number", map[string]int{"attempts": g.maxAttempts})
}

func (g *Generator) logCollision(ctx context.Context, index Index, candidate string, attempt int) {
	fields := logrus.Fields{"candidate": candidate, "attempt": attempt, "max_attempts": g.maxAttempts}
	if count, err := index.CountAccounts(ctx); err == nil {
		fields["existing_accounts"] = count
		fields["collision_probability"] = float64(count) / numberSpace
	}
	logrus.WithFields(fields).Warn("account number collision, re-rolling")
}
