// Package wap implements the write-audit-publish coordinator: it stages
// data on an isolated branch, runs the audit suite against it, and either
// publishes the branch into the base ref or disposes of it by policy.
package wap

import (
	"fmt"
	"time"

	"lakegate/internal/domain"
)

// Branch naming mode constants.
const (
	NamingFixed  = "fixed"
	NamingUnique = "unique"
)

// BranchPolicy decides what the staging branch is called.
//
// Fixed naming reuses one tenant-scoped name; concurrent runs on the same
// name must be serialized by the caller (the acquire step deletes any
// leftover branch). Unique naming appends a UTC timestamp and a random
// fragment, which makes concurrent runs safe but leaves orphaned branches
// behind if a process dies before cleanup.
type BranchPolicy struct {
	Naming string // use Naming* constants
	Tenant string
	Suffix string
}

// Validate checks that the policy is well-formed.
func (p *BranchPolicy) Validate() error {
	if p.Tenant == "" {
		return domain.ErrValidation("branch tenant is required")
	}
	if p.Suffix == "" {
		return domain.ErrValidation("branch suffix is required")
	}
	switch p.Naming {
	case NamingFixed, NamingUnique:
		return nil
	}
	return domain.ErrValidation("branch naming must be %q or %q, got %q", NamingFixed, NamingUnique, p.Naming)
}

// Name produces the branch name for one run.
func (p *BranchPolicy) Name() string {
	base := p.Tenant + "." + p.Suffix
	if p.Naming != NamingUnique {
		return base
	}
	stamp := time.Now().UTC().Format("20060102T150405Z")
	id := domain.NewID()
	return fmt.Sprintf("%s-%s-%s", base, stamp, id[len(id)-8:])
}
