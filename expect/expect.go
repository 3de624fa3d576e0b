// Package expect evaluates balance-change expectations over the deltas
// produced by the delta package and renders per-account diagnostics when an
// expectation is not met.
package expect

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainlens/chainlens/delta"
)

// Assertion carries the sense in which an expectation is evaluated. The
// sense is fixed when the assertion is created; in particular it is captured
// before any network round trip of a later comparison starts.
type Assertion struct {
	negated bool
}

// Changes creates an assertion expecting the listed balance changes to occur.
func Changes() *Assertion {
	return &Assertion{}
}

// Not flips the sense of the assertion: the comparison fails if every listed
// balance change occurs exactly as given.
func (a *Assertion) Not() *Assertion {
	return &Assertion{negated: !a.negated}
}

// BalanceChanges computes the balance deltas the transaction caused for the
// listed accounts and compares them positionally against the expected values.
// A nil return means the assertion held. A failed expectation is reported as
// a *MismatchError; any other error is a fatal defect of the computation
// itself (missing receipt, unresolvable account, node failure).
func (a *Assertion) BalanceChanges(ctx context.Context, chain delta.ChainReader, tx delta.Tx, accounts []delta.Account, expected []*big.Int, opts delta.Options) error {
	negated := a.negated // fixed before anything is awaited

	if len(accounts) != len(expected) {
		return fmt.Errorf("got %d accounts but %d expected changes; the lists must be matched positionally", len(accounts), len(expected))
	}

	deltas, err := delta.ComputeBalanceChanges(ctx, chain, tx, accounts, opts)
	if err != nil {
		return err
	}

	addresses := make([]common.Address, len(accounts))
	for i, account := range accounts {
		// already resolved once during the computation, so this cannot fail
		addresses[i], _ = account.Address()
	}

	return Evaluate(addresses, deltas, expected, negated)
}

// Evaluate applies the exact-match predicate over the actual and expected
// deltas and produces the error matching the active sense of the assertion.
// Message formatting is deferred until the error is printed.
func Evaluate(addresses []common.Address, actual, expected []*big.Int, negated bool) error {
	pass := true
	for i := range actual {
		if actual[i].Cmp(expected[i]) != 0 {
			pass = false
			break
		}
	}
	if pass == negated {
		return &MismatchError{
			Addresses: addresses,
			Actual:    actual,
			Expected:  expected,
			Negated:   negated,
		}
	}
	return nil
}

// MismatchError reports a failed balance-change expectation. For a plain
// assertion it lists every position whose delta differs from the expected
// value; for a negated assertion it lists every position whose delta matched
// even though it was expected not to.
type MismatchError struct {
	Addresses []common.Address
	Actual    []*big.Int
	Expected  []*big.Int
	Negated   bool
}

func (e *MismatchError) Error() string {
	var lines []string
	for i := range e.Actual {
		matched := e.Actual[i].Cmp(e.Expected[i]) == 0
		if e.Negated && matched {
			lines = append(lines, fmt.Sprintf(
				"expected balance of %v (the %s account in the list) NOT to change by %v wei, but it did",
				e.Addresses[i], Ordinal(i+1), e.Expected[i]))
		}
		if !e.Negated && !matched {
			lines = append(lines, fmt.Sprintf(
				"expected balance of %v (the %s account in the list) to change by %v wei, but it changed by %v wei",
				e.Addresses[i], Ordinal(i+1), e.Expected[i], e.Actual[i]))
		}
	}
	return strings.Join(lines, "\n")
}

// Ordinal renders a 1-based list position as an English ordinal number,
// e.g. 1 -> "1st", 2 -> "2nd", 13 -> "13th", 22 -> "22nd".
func Ordinal(n int) string {
	suffix := "th"
	if n%100 < 11 || n%100 > 13 {
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
