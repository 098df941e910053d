// Package gate implements the PIN lock guarding the ledger. A credential
// is a {salt, hash} pair in one durable device-local slot; the unlock
// bit is session-scoped and resets with every new browsing session.
//
// All primitives (random source, digest, key-value slot, session flag)
// are injected so the state machine is testable without a real storage
// backend or real crypto.
package gate

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"kopilka/internal/storage"
)

// CredentialKey is the settings slot holding the serialized credential.
const CredentialKey = "finance_pin_v1"

// State of the gate for one session.
type State int

const (
	// Unprovisioned: no credential exists yet on this device.
	Unprovisioned State = iota
	// Locked: a credential exists and this session has not verified.
	Locked
	// Unlocked: terminal for the session; there is no re-lock action.
	Unlocked
)

func (s State) String() string {
	switch s {
	case Unprovisioned:
		return "unprovisioned"
	case Locked:
		return "locked"
	case Unlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

var (
	ErrBadPIN             = errors.New("PIN must be 4 to 6 digits")
	ErrConfirmMismatch    = errors.New("PIN confirmation does not match")
	ErrAlreadyProvisioned = errors.New("a PIN is already set on this device")
	ErrNotProvisioned     = errors.New("no PIN is set on this device")
)

var pinPattern = regexp.MustCompile(`^\d{4,6}$`)

type (
	// RandomSource yields n random bytes for salt generation.
	RandomSource func(n int) ([]byte, error)

	// Digest hashes salt‖pin to a hex string.
	Digest func(s string) string

	// KeyValueStore is the durable slot holding the credential.
	// storage.SQLiteStore and storage.MemoryStore both satisfy it.
	KeyValueStore interface {
		GetValue(ctx context.Context, key string) (string, error)
		SetValue(ctx context.Context, key, value string) error
	}

	// SessionFlag is the session-scoped unlock bit.
	SessionFlag interface {
		Unlocked() bool
		SetUnlocked()
	}

	// credential is the stored {salt, hash} pair.
	credential struct {
		Salt string `json:"salt"`
		Hash string `json:"hash"`
	}
)

// Gate is the PIN-gate state machine.
type Gate struct {
	kv     KeyValueStore
	random RandomSource
	digest Digest
}

// Option configures a Gate.
type Option func(*Gate)

// WithRandomSource overrides the salt source (tests).
func WithRandomSource(r RandomSource) Option {
	return func(g *Gate) { g.random = r }
}

// WithDigest overrides the hash function (tests).
func WithDigest(d Digest) Option {
	return func(g *Gate) { g.digest = d }
}

// New builds a gate over the given credential slot store. Defaults are
// crypto/rand for salts and hex-encoded SHA-256 for the digest.
func New(kv KeyValueStore, opts ...Option) *Gate {
	g := &Gate{
		kv: kv,
		random: func(n int) ([]byte, error) {
			b := make([]byte, n)
			if _, err := rand.Read(b); err != nil {
				return nil, err
			}
			return b, nil
		},
		digest: func(s string) string {
			sum := sha256.Sum256([]byte(s))
			return hex.EncodeToString(sum[:])
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State resolves the gate state for the given session. A set unlock flag
// short-circuits straight to Unlocked without prompting.
func (g *Gate) State(ctx context.Context, sess SessionFlag) (State, error) {
	cred, err := g.loadCredential(ctx)
	if err != nil {
		return Locked, err
	}
	if cred == nil {
		return Unprovisioned, nil
	}
	if sess.Unlocked() {
		return Unlocked, nil
	}
	return Locked, nil
}

// Provision sets a new credential from two matching PIN entries and
// unlocks the session. A credential can be set at most once; there is no
// reset path, loss of the PIN is unrecoverable by design.
func (g *Gate) Provision(ctx context.Context, sess SessionFlag, pin, confirm string) error {
	if !pinPattern.MatchString(pin) {
		return ErrBadPIN
	}
	if pin != confirm {
		return ErrConfirmMismatch
	}

	cred, err := g.loadCredential(ctx)
	if err != nil {
		return err
	}
	if cred != nil {
		return ErrAlreadyProvisioned
	}

	saltBytes, err := g.random(16)
	if err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	salt := hex.EncodeToString(saltBytes)
	next := credential{Salt: salt, Hash: g.digest(salt + pin)}

	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	if err := g.kv.SetValue(ctx, CredentialKey, string(raw)); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}

	sess.SetUnlocked()
	return nil
}

// Verify checks one PIN entry against the stored credential. A mismatch
// is a terminal outcome of the check, not an error: it returns
// (false, nil) and the gate stays Locked with unlimited retries. Errors
// are reserved for malformed input and storage faults, neither of which
// transitions state.
func (g *Gate) Verify(ctx context.Context, sess SessionFlag, pin string) (bool, error) {
	if !pinPattern.MatchString(pin) {
		return false, ErrBadPIN
	}

	cred, err := g.loadCredential(ctx)
	if err != nil {
		return false, err
	}
	if cred == nil {
		return false, ErrNotProvisioned
	}

	got := g.digest(cred.Salt + pin)
	if subtle.ConstantTimeCompare([]byte(got), []byte(cred.Hash)) != 1 {
		return false, nil
	}

	sess.SetUnlocked()
	return true, nil
}

func (g *Gate) loadCredential(ctx context.Context) (*credential, error) {
	raw, err := g.kv.GetValue(ctx, CredentialKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	var cred credential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	return &cred, nil
}
