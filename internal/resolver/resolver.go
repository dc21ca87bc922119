// Package resolver decides the outcome of a claim. The engine picks the live
// strategy by name from a Registry and only ever calls CanResolve and Resolve.
package resolver

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

const (
	AdminName     = "admin"
	AssertionName = "assertion"
)

// Resolver reports outcomes by claim hash. tx may be nil.
type Resolver interface {
	CanResolve(ctx context.Context, tx *sql.Tx, claimHash string) (bool, error)
	Resolve(ctx context.Context, tx *sql.Tx, claimHash string) (bool, error)
}

type Registry map[string]Resolver

func (r Registry) Get(name string) (Resolver, error) {
	res, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("resolver %q not registered", name)
	}
	return res, nil
}

// Names lists registered strategies in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
