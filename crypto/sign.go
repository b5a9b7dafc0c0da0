package crypto

import (
	"crypto/rand"

	qdilithium "github.com/theQRL/go-qrllib/dilithium"

	"github.com/numi-chain/numi-core/common"
	"github.com/numi-chain/numi-core/log"
	"github.com/numi-chain/numi-core/xerrors"
)

var signLogger = log.NewModuleLogger(log.Crypto)

// KeyPair is a Dilithium3 keypair. Secret is wiped on Wipe(); callers must
// call Wipe when the keypair leaves scope (spec.md §9 "Secret keys ... are
// wrapped in an ownership-bound container that wipes memory on drop").
type KeyPair struct {
	Public common.PubKey
	secret []byte
	seed   [qdilithium.SeedBytes]uint8
}

// keypairFromSeed derives a keypair deterministically from seed;
// KeypairGenerate below is the public entry point and supplies a random seed.
func keypairFromSeed(seed [qdilithium.SeedBytes]uint8) (*KeyPair, error) {
	d, err := qdilithium.NewDilithiumFromSeed(seed)
	if err != nil {
		return nil, xerrors.CryptoFailure("dilithium_keygen", err)
	}
	pk := d.GetPK()
	sk := d.GetSK()
	return &KeyPair{
		Public: append([]byte(nil), pk[:]...),
		secret: append([]byte(nil), sk[:]...),
		seed:   seed,
	}, nil
}

// KeypairGenerate creates a fresh Dilithium3 keypair from the system CSPRNG
// (spec.md §4.1 "keypair_generate() → (public, secret)"). The spec's
// from_secret_key prohibition — keypairs are stored as pairs, never
// re-derived from a bare secret — is honored by never exposing a
// seed-from-secret-key path outside this file.
func KeypairGenerate() (*KeyPair, error) {
	var seed [qdilithium.SeedBytes]uint8
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, xerrors.New(xerrors.KindCryptoFailure, "entropy", err)
	}
	return keypairFromSeed(seed)
}

// SecretBytes exposes the raw secret key for the keystore to encrypt at
// rest. Callers must not retain the returned slice past use.
func (k *KeyPair) SecretBytes() []byte { return k.secret }

// Wipe zeroes the in-memory secret material. Safe to call multiple times.
func (k *KeyPair) Wipe() {
	for i := range k.secret {
		k.secret[i] = 0
	}
	for i := range k.seed {
		k.seed[i] = 0
	}
}

// KeyPairFromParts reconstructs a KeyPair from previously stored public and
// secret bytes (the keystore's Get path). This is the only supported way to
// materialize a KeyPair besides KeypairGenerate — there is deliberately no
// "derive public from secret" helper (spec.md §4.1 from_secret_key policy).
func KeyPairFromParts(public, secret []byte) *KeyPair {
	return &KeyPair{
		Public: append([]byte(nil), public...),
		secret: append([]byte(nil), secret...),
	}
}

// Sign signs msg with the keypair's secret key, returning a Dilithium3
// signature.
func Sign(kp *KeyPair, msg []byte) ([]byte, error) {
	if len(kp.secret) != qdilithium.CryptoSecretKeyBytes {
		return nil, xerrors.New(xerrors.KindCryptoFailure, "invalid_secret_key_length", nil)
	}
	var sk [qdilithium.CryptoSecretKeyBytes]uint8
	copy(sk[:], kp.secret)
	var pk [qdilithium.CryptoPublicKeyBytes]uint8
	copy(pk[:], kp.Public)

	d, err := qdilithium.NewDilithiumFromKeys(pk, sk)
	if err != nil {
		return nil, xerrors.CryptoFailure("dilithium_load_keys", err)
	}
	sig, err := d.Sign(msg)
	if err != nil {
		return nil, xerrors.CryptoFailure("dilithium_sign", err)
	}
	return sig[:], nil
}

// Verify checks a Dilithium3 signature over msg under public. It never
// panics on malformed input — malformed keys/signatures simply fail to
// verify (spec.md §4.1 "return a Result form, not a panic").
func Verify(public, msg, signature []byte) bool {
	if len(public) != qdilithium.CryptoPublicKeyBytes {
		return false
	}
	if len(signature) != qdilithium.CryptoBytes {
		return false
	}
	var pk [qdilithium.CryptoPublicKeyBytes]uint8
	copy(pk[:], public)
	var sig [qdilithium.CryptoBytes]uint8
	copy(sig[:], signature)

	ok, err := qdilithium.Verify(msg, sig, pk)
	if err != nil {
		signLogger.Debug("signature verification error", "err", err)
		return false
	}
	return ok
}
