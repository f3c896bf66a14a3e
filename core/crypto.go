//----------------------------------------------------------------------
// This file is part of leatea-routing.
// Copyright (C) 2022 Bernd Fix >Y<
//
// leatea-routing is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License,
// or (at your option) any later version.
//
// leatea-routing is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL3.0-or-later
//----------------------------------------------------------------------

package core

import (
	"golang.org/x/crypto/blake2b"
)

// Seal and Open stand in for session encryption: Session.GenPacket
// seals each application Data payload and Session.Open reverses it.
// The simulation does not model an adversary, so a keyed blake2b
// keystream XOR is sufficient: it is cheap, its key depends on both
// endpoints, and it is its own inverse. It provides no integrity check,
// and routed-session relay packets are not sealed per hop.

// deriveKeystream expands key+nonce into n bytes of pseudo-random
// keystream via blake2b in a simple counter mode.
func deriveKeystream(key, nonce []byte, n int) []byte {
	out := make([]byte, 0, n)
	var counter uint64
	for len(out) < n {
		h, _ := blake2b.New256(key)
		h.Write(nonce)
		var ctr [8]byte
		for i := 0; i < 8; i++ {
			ctr[i] = byte(counter >> (8 * i))
		}
		h.Write(ctr[:])
		out = append(out, h.Sum(nil)...)
		counter++
	}
	return out[:n]
}

// SealPlaceholder XORs plaintext with a keystream derived from key and
// nonce.
func SealPlaceholder(key, nonce, plaintext []byte) []byte {
	ks := deriveKeystream(key, nonce, len(plaintext))
	out := make([]byte, len(plaintext))
	for i := range plaintext {
		out[i] = plaintext[i] ^ ks[i]
	}
	return out
}

// OpenPlaceholder reverses SealPlaceholder; the XOR keystream cipher is
// an involution, so Open and Seal are the same transform.
func OpenPlaceholder(key, nonce, ciphertext []byte) []byte {
	return SealPlaceholder(key, nonce, ciphertext)
}

// SessionKey derives a shared 32-byte key for a session from the two
// endpoints' identities and the session id, standing in for the
// Diffie-Hellman exchange a real handshake would perform.
func SessionKey(a, b *NodeID, sid SessionID) []byte {
	lo, hi := a, b
	if b.Less(a) {
		lo, hi = b, a
	}
	h, _ := blake2b.New256(nil)
	h.Write(lo.Bytes())
	h.Write(hi.Bytes())
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(uint64(sid) >> (8 * i))
	}
	h.Write(buf[:])
	return h.Sum(nil)
}
