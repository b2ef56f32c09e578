package stream

import (
	"encoding/binary"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// vaultDerivationLabel namespaces escrow vault addresses so they cannot
// collide with ordinary ledger accounts. No private key exists for a vault
// address; only the engine moves funds out of it.
const vaultDerivationLabel = "vibestream/escrow/v1"

// DeriveVaultAddress computes the escrow vault address bound to a stream. The
// address is deterministic over the stream identifier, so the custody
// authority is scoped to exactly one stream without any held secret.
func DeriveVaultAddress(streamID string) [20]byte {
	digest := ethcrypto.Keccak256([]byte(vaultDerivationLabel), []byte(streamID))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}

// AttestationMessage builds the canonical byte message the backend signs over
// a watch report: the stream id bytes followed, per attestation in list
// order, by the viewer address, the watch-time units as 8 little-endian
// bytes and a single watch-percentage byte. Any reordering or mutation of
// the list produces a different message.
func AttestationMessage(streamID string, attestations []ViewerAttestation) []byte {
	buf := make([]byte, 0, len(streamID)+len(attestations)*29)
	buf = append(buf, []byte(streamID)...)
	var units [8]byte
	for _, a := range attestations {
		buf = append(buf, a.Viewer[:]...)
		binary.LittleEndian.PutUint64(units[:], a.WatchTime)
		buf = append(buf, units[:]...)
		buf = append(buf, a.WatchPct)
	}
	return buf
}

// Verifier is the trust boundary for externally computed settlement data: a
// boolean predicate over (signer identity, message, signature). Swapping the
// verification scheme never touches the settlement math.
type Verifier interface {
	Verify(signer [20]byte, message []byte, sig []byte) bool
}

// RecoverVerifier accepts 65-byte recoverable secp256k1 signatures over the
// keccak256 digest of the message, checking the recovered address against the
// expected signer.
type RecoverVerifier struct{}

// Verify implements the Verifier interface.
func (RecoverVerifier) Verify(signer [20]byte, message []byte, sig []byte) bool {
	if len(sig) != 65 {
		return false
	}
	digest := ethcrypto.Keccak256(message)
	pubKey, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return false
	}
	recovered := ethcrypto.PubkeyToAddress(*pubKey)
	return recovered == ethcommon.BytesToAddress(signer[:])
}

// verifyAttestations checks the backend signature over the supplied
// attestation list and validates the per-entry bounds shared by the
// settlement and dispute-correction paths.
func (e *Engine) verifyAttestations(platform *Platform, streamID string, attestations []ViewerAttestation, sig []byte) error {
	if len(attestations) > MaxAttestations {
		return ErrTooManyAttestations
	}
	seen := make(map[[20]byte]struct{}, len(attestations))
	for _, a := range attestations {
		if a.WatchPct > 100 {
			return ErrPercentageRange
		}
		if _, dup := seen[a.Viewer]; dup {
			return ErrDuplicateAttestation
		}
		seen[a.Viewer] = struct{}{}
	}
	message := AttestationMessage(streamID, attestations)
	if !e.verifier.Verify(platform.BackendSigner, message, sig) {
		return ErrInvalidBackendSignature
	}
	return nil
}
