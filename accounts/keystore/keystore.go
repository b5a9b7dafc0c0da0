package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/cp"
	"golang.org/x/crypto/scrypt"

	"github.com/numi-chain/numi-core/crypto"
	"github.com/numi-chain/numi-core/log"
	"github.com/numi-chain/numi-core/xerrors"
)

var keystoreLogger = log.NewModuleLogger(log.Keystore)

const nonceLength = 12

// record is the on-disk layout per entry: {version, kdf_params, nonce,
// ciphertext, auth_tag} (spec.md §4.3). Metadata — label, version,
// kdf_params — rides inside the AEAD additional data so it is
// authenticated without being encrypted; created_at is part of the
// encrypted plaintext, so it is authenticated by the same tag. Nothing is
// stored unauthenticated.
type record struct {
	Label   string
	Version uint32
	KDF     kdfParams
	Nonce   []byte
	Cipher  []byte // ciphertext || auth tag, as produced by cipher.AEAD.Seal
}

func (r *record) additionalData() []byte {
	e := &byteEncoder{}
	e.putBytes([]byte(r.Label))
	var v [4]byte
	binary.LittleEndian.PutUint32(v[:], r.Version)
	e.buf.Write(v[:])
	e.putU64(uint64(r.KDF.N))
	e.putU64(uint64(r.KDF.R))
	e.putU64(uint64(r.KDF.P))
	return e.bytes()
}

func (r *record) encode() []byte {
	e := &byteEncoder{}
	e.putBytes([]byte(r.Label))
	var v [4]byte
	binary.LittleEndian.PutUint32(v[:], r.Version)
	e.buf.Write(v[:])
	e.putU64(uint64(r.KDF.N))
	e.putU64(uint64(r.KDF.R))
	e.putU64(uint64(r.KDF.P))
	e.putBytes(r.Nonce)
	e.putBytes(r.Cipher)
	return e.bytes()
}

func decodeRecord(b []byte) (*record, error) {
	d := newByteDecoder(b)
	r := &record{}
	labelBytes, err := d.bytes()
	if err != nil {
		return nil, err
	}
	r.Label = string(labelBytes)

	var v [4]byte
	if _, err := io.ReadFull(d.r, v[:]); err != nil {
		return nil, err
	}
	r.Version = binary.LittleEndian.Uint32(v[:])

	n, err := d.u64()
	if err != nil {
		return nil, err
	}
	rr, err := d.u64()
	if err != nil {
		return nil, err
	}
	p, err := d.u64()
	if err != nil {
		return nil, err
	}
	r.KDF = kdfParams{N: int(n), R: int(rr), P: int(p)}

	if r.Nonce, err = d.bytes(); err != nil {
		return nil, err
	}
	if r.Cipher, err = d.bytes(); err != nil {
		return nil, err
	}
	return r, nil
}

// Store is the encrypted, label-keyed keypair store (spec.md §4.3).
type Store struct {
	mu       sync.Mutex
	dir      string
	password []byte
	dev      bool
}

// Init opens (creating if absent) the keystore rooted at dir, authenticated
// by password. dev relaxes the KDF cost for test/dev environments per the
// spec's "lower in dev" allowance.
func Init(dir string, password []byte, dev bool) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, xerrors.ResourceError("keystore_mkdir", err)
	}
	return &Store{dir: dir, password: append([]byte(nil), password...), dev: dev}, nil
}

func (s *Store) params() kdfParams {
	if s.dev {
		return devKDFParams()
	}
	return defaultKDFParams()
}

func (s *Store) deriveKey(kdf kdfParams, salt []byte) ([]byte, error) {
	key, err := scrypt.Key(s.password, salt, kdf.N, kdf.R, kdf.P, 32)
	if err != nil {
		return nil, xerrors.New(xerrors.KindCryptoFailure, "scrypt_derive", err)
	}
	return key, nil
}

func (s *Store) path(label string, version uint32) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.v%d.keystore", label, version))
}

func (s *Store) currentVersionPath(label string) (string, uint32, bool) {
	for v := uint32(1); ; v++ {
		p := s.path(label, v)
		if _, err := os.Stat(p); err != nil {
			if v == 1 {
				return "", 0, false
			}
			return s.path(label, v-1), v - 1, true
		}
	}
}

// Store persists keypair under label, encrypted with the store password.
// ttlSeconds, if non-zero, sets an absolute expiry relative to createdAt.
func (s *Store) Store(label string, kp *crypto.KeyPair, createdAt uint64, ttlSeconds uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, prevVersion, exists := s.currentVersionPath(label)
	version := uint32(1)
	if exists {
		version = prevVersion + 1
	}

	plain := &entryPlaintext{
		PublicKey:  kp.Public,
		SecretKey:  kp.SecretBytes(),
		CreatedAt:  createdAt,
		LastUsedAt: createdAt,
	}
	if ttlSeconds > 0 {
		plain.HasExpiresAt = true
		plain.ExpiresAt = createdAt + ttlSeconds
	}

	kdf := s.params()
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return xerrors.New(xerrors.KindCryptoFailure, "entropy", err)
	}
	key, err := s.deriveKey(kdf, salt)
	if err != nil {
		return err
	}
	defer wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return xerrors.New(xerrors.KindCryptoFailure, "aes_init", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return xerrors.New(xerrors.KindCryptoFailure, "gcm_init", err)
	}
	nonce := make([]byte, nonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return xerrors.New(xerrors.KindCryptoFailure, "entropy", err)
	}

	rec := &record{Label: label, Version: version, KDF: kdf, Nonce: append(salt, nonce...)}
	sealed := gcm.Seal(nil, nonce, plain.encode(), append([]byte(nil), rec.additionalData()...))
	rec.Cipher = sealed

	return atomicWrite(s.path(label, version), rec.encode())
}

// Get loads and decrypts the current (latest) version of label. now is
// compared against the entry's expires_at, if any (spec.md §4.3 Expired
// failure mode).
func (s *Store) Get(label string, now uint64) (*crypto.KeyPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, _, exists := s.currentVersionPath(label)
	if !exists {
		return nil, xerrors.NotFound("keystore_label")
	}
	plain, err := s.decryptFrom(path)
	if err != nil {
		return nil, err
	}
	if plain.HasExpiresAt && now >= plain.ExpiresAt {
		return nil, xerrors.New(xerrors.KindStateError, "keystore_entry_expired", nil)
	}
	return crypto.KeyPairFromParts(plain.PublicKey, plain.SecretKey), nil
}

func (s *Store) loadFrom(path string) (*crypto.KeyPair, error) {
	plain, err := s.decryptFrom(path)
	if err != nil {
		return nil, err
	}
	return crypto.KeyPairFromParts(plain.PublicKey, plain.SecretKey), nil
}

func (s *Store) decryptFrom(path string) (*entryPlaintext, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, xerrors.ResourceError("keystore_read", err)
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, xerrors.New(xerrors.KindStateError, "keystore_tampered", err)
	}
	if len(rec.Nonce) < 16+nonceLength {
		return nil, xerrors.New(xerrors.KindStateError, "keystore_tampered", nil)
	}
	salt, nonce := rec.Nonce[:16], rec.Nonce[16:]

	key, err := s.deriveKey(rec.KDF, salt)
	if err != nil {
		return nil, err
	}
	defer wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, xerrors.New(xerrors.KindCryptoFailure, "aes_init", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, xerrors.New(xerrors.KindCryptoFailure, "gcm_init", err)
	}

	plainBytes, err := gcm.Open(nil, nonce, rec.Cipher, append([]byte(nil), rec.additionalData()...))
	if err != nil {
		return nil, xerrors.New(xerrors.KindCryptoFailure, "bad_password_or_tampered", err)
	}
	plain, err := decodeEntryPlaintext(plainBytes)
	if err != nil {
		return nil, xerrors.New(xerrors.KindStateError, "keystore_tampered", err)
	}
	return plain, nil
}

// Rotate generates a new keypair, stores it under label at the next
// version, and returns it. The prior version remains on disk for audit and
// CreateBackup purposes.
func (s *Store) Rotate(label string, createdAt uint64, ttlSeconds uint64) (*crypto.KeyPair, error) {
	kp, err := crypto.KeypairGenerate()
	if err != nil {
		return nil, err
	}
	if err := s.Store(label, kp, createdAt, ttlSeconds); err != nil {
		return nil, err
	}
	return kp, nil
}

// VerifyIntegrity decrypts every entry under the store directory, surfacing
// the first tamper/corruption failure it finds.
func (s *Store) VerifyIntegrity() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := ioutil.ReadDir(s.dir)
	if err != nil {
		return xerrors.ResourceError("keystore_readdir", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := s.loadFrom(filepath.Join(s.dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// CreateBackup copies the entire keystore directory to dst, file by file,
// via cp.CopyFile, which itself writes to a temp file in dst and renames —
// the same atomic discipline Store uses for its own writes, so a reader of
// dst never observes a partially written file.
func (s *Store) CreateBackup(dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(dst, 0700); err != nil {
		return xerrors.ResourceError("keystore_backup_mkdir", err)
	}
	entries, err := ioutil.ReadDir(s.dir)
	if err != nil {
		return xerrors.ResourceError("keystore_readdir", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		src := filepath.Join(s.dir, e.Name())
		if err := cp.CopyFile(filepath.Join(dst, e.Name()), src); err != nil {
			return xerrors.ResourceError("keystore_backup_copy", err)
		}
	}
	keystoreLogger.Info("keystore backup written", "dst", dst, "entries", len(entries))
	return nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// atomicWrite implements the spec's "write-to-temp-then-rename" requirement
// (spec.md §4.3). The temp file lives in the same directory as the target
// so the final rename is guaranteed to be on the same filesystem.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := ioutil.TempFile(dir, ".tmp-keystore-*")
	if err != nil {
		return xerrors.ResourceError("keystore_tempfile", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return xerrors.ResourceError("keystore_write", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return xerrors.ResourceError("keystore_sync", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return xerrors.ResourceError("keystore_close", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return xerrors.ResourceError("keystore_rename", err)
	}
	return nil
}
