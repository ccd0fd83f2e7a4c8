// Package chain implements the integrity and consensus core of a message ledger.
//
// A ledger is an ordered sequence of entries rooted at a genesis entry
// (index 1, previous hash "0"). Every entry records the SHA-256 digest of its
// predecessor, and its own digest is always recomputable from its content
// fields, so tampering with any field is detectable via Validate.
//
// Nodes exchange whole-ledger proposals. Resolve picks the proposal submitted
// most often (plurality vote over exact ledger equality); ties go to the
// earliest submission. It is not a longest-chain or cumulative-work rule.
//
// The Proof field is a placeholder kept for wire compatibility. No
// proof-of-work is computed, so it provides no Sybil or spam resistance.
package chain
