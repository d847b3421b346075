// turbotrim: a high-performance tool for trimming paired FASTQ files.
// Copyright (c) 2022 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/turbotrim/blob/master/LICENSE.txt>.

package fastq

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// A PairingLedger records the ordinals of all pairs written to a
// PairSink, so that the pipeline can check that every pair read was
// written exactly once, even when batches arrive out of order.
//
// A PairingLedger is not safe for concurrent use; the sink node of the
// pipeline is its only user.
type PairingLedger struct {
	written *bitset.BitSet
	count   int
}

// NewPairingLedger returns an empty PairingLedger.
func NewPairingLedger() *PairingLedger {
	return &PairingLedger{written: bitset.New(0)}
}

// Mark records that the pair with the given ordinal has been written.
func (ledger *PairingLedger) Mark(ordinal int) error {
	if ordinal < 0 {
		return fmt.Errorf("invalid pair ordinal %v", ordinal)
	}
	if ledger.written.Test(uint(ordinal)) {
		return fmt.Errorf("pair %v written more than once", ordinal+1)
	}
	ledger.written.Set(uint(ordinal))
	ledger.count++
	return nil
}

// Count returns the number of pairs marked so far.
func (ledger *PairingLedger) Count() int {
	return ledger.count
}

// Verify checks that exactly the ordinals 0 to n-1 have been marked.
func (ledger *PairingLedger) Verify(n int) error {
	if _, found := ledger.written.NextSet(uint(n)); found {
		return fmt.Errorf("pairs written beyond the %v pairs read", n)
	}
	if ledger.count != n {
		return fmt.Errorf("%v pairs read, but only %v pairs written", n, ledger.count)
	}
	return nil
}
