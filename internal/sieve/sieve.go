// Package sieve holds the worker-side numerics: stepping through primes in
// an assigned range and testing them against the target.
//
// Values are *big.Int so targets of any size work; range bounds fit in
// int64 and are converted at the edges.
package sieve

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
)

// primalityRounds is the Miller-Rabin round count passed to ProbablyPrime.
// ProbablyPrime is exact for inputs below 2^64 regardless of rounds.
const primalityRounds = 20

var (
	one = big.NewInt(1)
	two = big.NewInt(2)
)

// NextPrime returns the smallest prime strictly greater than n.
func NextPrime(n *big.Int) *big.Int {
	if n.Cmp(two) < 0 {
		return big.NewInt(2)
	}
	p := new(big.Int).Add(n, one)
	if p.Bit(0) == 0 {
		p.Add(p, one)
	}
	for !p.ProbablyPrime(primalityRounds) {
		p.Add(p, two)
	}
	return p
}

// Divides reports whether d divides target exactly. A zero d never divides.
func Divides(target, d *big.Int) bool {
	if d.Sign() == 0 {
		return false
	}
	return new(big.Int).Rem(target, d).Sign() == 0
}

// PrimesIn calls fn for every prime p with start <= p < end, in order.
// It stops early when ctx is canceled or fn returns false, and returns the
// context error in the first case.
func PrimesIn(ctx context.Context, start, end int64, fn func(p *big.Int) bool) error {
	limit := big.NewInt(end)
	p := NextPrime(big.NewInt(start - 1))
	for p.Cmp(limit) < 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fn(new(big.Int).Set(p)) {
			return nil
		}
		p = NextPrime(p)
	}
	return nil
}

// Search returns the primes in [start, end) that divide target.
func Search(ctx context.Context, target *big.Int, start, end int64) ([]*big.Int, error) {
	var found []*big.Int
	err := PrimesIn(ctx, start, end, func(p *big.Int) bool {
		if Divides(target, p) {
			found = append(found, p)
		}
		return true
	})
	return found, err
}

// ParseTarget reads a positive base-10 integer from r. Whitespace and line
// breaks are ignored so very long numbers may be wrapped.
func ParseTarget(r io.Reader) (*big.Int, error) {
	var b strings.Builder
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<30)
	for sc.Scan() {
		b.WriteString(strings.Join(strings.Fields(sc.Text()), ""))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read target: %w", err)
	}
	n, ok := new(big.Int).SetString(b.String(), 10)
	if !ok {
		return nil, errors.New("target is not a base-10 integer")
	}
	if n.Sign() <= 0 {
		return nil, errors.New("target must be positive")
	}
	return n, nil
}

// LoadTarget reads the target from the file at path.
func LoadTarget(path string) (*big.Int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open target: %w", err)
	}
	defer f.Close()
	return ParseTarget(f)
}
