// Package vault keeps one set of portal credentials on the device so the
// client can log in again without asking for the password.
//
// Each save generates a fresh data key that encrypts the secret with
// XChaCha20-Poly1305 (the identifier is bound as associated data). The data
// key is wrapped with a device key using NaCl secretbox and stored next to
// the ciphertext. The device key lives in the same storage, so the record is
// only as confidential as that storage: this keeps passwords out of plain
// text and logs, it does not defend against someone who can read the store.
package vault

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/nacl/secretbox"

	"integration-school-portal/internal/config"
	"integration-school-portal/internal/logger"
	"integration-school-portal/internal/model"
	"integration-school-portal/internal/storage"
	perrors "integration-school-portal/pkg/errors"

	"github.com/rs/zerolog"
)

const (
	recordVersion = 1
	keySize       = 32
)

type record struct {
	Version    int    `json:"v"`
	Identifier string `json:"id"`
	WrappedKey []byte `json:"wk"`
	KeyNonce   []byte `json:"kn"`
	Nonce      []byte `json:"n"`
	Ciphertext []byte `json:"ct"`
}

type Vault struct {
	store     storage.Storage
	recordKey string
	deviceKey string
	random    io.Reader
	log       zerolog.Logger
}

func New(store storage.Storage, cfg config.VaultConfig) *Vault {
	return &Vault{
		store:     store,
		recordKey: cfg.RecordKey,
		deviceKey: cfg.DeviceKey,
		random:    rand.Reader,
		log:       logger.For("vault"),
	}
}

// Save overwrites any previously stored credential.
func (v *Vault) Save(ctx context.Context, cred model.Credential) error {
	if cred.Identifier == "" || cred.Secret == "" {
		return fmt.Errorf("refusing to store incomplete credentials")
	}
	device, err := v.deviceKeyFor(ctx, true)
	if err != nil {
		return err
	}

	dataKey := make([]byte, keySize)
	if _, err := io.ReadFull(v.random, dataKey); err != nil {
		return fmt.Errorf("failed to generate data key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(dataKey)
	if err != nil {
		return err
	}

	rec := record{
		Version:    recordVersion,
		Identifier: cred.Identifier,
		Nonce:      make([]byte, aead.NonceSize()),
		KeyNonce:   make([]byte, 24),
	}
	if _, err := io.ReadFull(v.random, rec.Nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	if _, err := io.ReadFull(v.random, rec.KeyNonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	rec.Ciphertext = aead.Seal(nil, rec.Nonce, []byte(cred.Secret), []byte(cred.Identifier))

	var keyNonce [24]byte
	copy(keyNonce[:], rec.KeyNonce)
	rec.WrappedKey = secretbox.Seal(nil, dataKey, &keyNonce, device)

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal vault record: %w", err)
	}
	if err := v.store.Put(ctx, v.recordKey, data); err != nil {
		return fmt.Errorf("failed to persist vault record: %w", err)
	}

	v.log.Info().Str("identifier", cred.Identifier).Msg("Credentials stored")
	return nil
}

// Load returns the stored credential. A missing, unreadable or forged
// record is reported as absent; only the log sees ErrVaultCorrupt.
func (v *Vault) Load(ctx context.Context) (model.Credential, bool) {
	data, err := v.store.Get(ctx, v.recordKey)
	if err != nil {
		if !errors.Is(err, perrors.ErrNotFound) {
			v.log.Warn().Err(err).Msg("Failed to read vault record")
		}
		return model.Credential{}, false
	}

	cred, err := v.open(ctx, data)
	if err != nil {
		v.log.Warn().Err(fmt.Errorf("%w: %v", perrors.ErrVaultCorrupt, err)).Msg("Ignoring vault record")
		return model.Credential{}, false
	}
	return cred, true
}

func (v *Vault) open(ctx context.Context, data []byte) (model.Credential, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.Credential{}, err
	}
	if rec.Version != recordVersion || len(rec.KeyNonce) != 24 || rec.Identifier == "" {
		return model.Credential{}, fmt.Errorf("unsupported record")
	}
	device, err := v.deviceKeyFor(ctx, false)
	if err != nil {
		return model.Credential{}, err
	}

	var keyNonce [24]byte
	copy(keyNonce[:], rec.KeyNonce)
	dataKey, ok := secretbox.Open(nil, rec.WrappedKey, &keyNonce, device)
	if !ok || len(dataKey) != keySize {
		return model.Credential{}, fmt.Errorf("data key unwrap failed")
	}
	aead, err := chacha20poly1305.NewX(dataKey)
	if err != nil {
		return model.Credential{}, err
	}
	if len(rec.Nonce) != aead.NonceSize() {
		return model.Credential{}, fmt.Errorf("bad nonce size")
	}
	secret, err := aead.Open(nil, rec.Nonce, rec.Ciphertext, []byte(rec.Identifier))
	if err != nil {
		return model.Credential{}, err
	}
	return model.Credential{Identifier: rec.Identifier, Secret: string(secret)}, nil
}

// Clear removes the stored credential. The device key is kept.
func (v *Vault) Clear(ctx context.Context) error {
	if err := v.store.Delete(ctx, v.recordKey); err != nil {
		return fmt.Errorf("failed to delete vault record: %w", err)
	}
	v.log.Info().Msg("Credentials cleared")
	return nil
}

func (v *Vault) Has(ctx context.Context) bool {
	_, ok := v.Load(ctx)
	return ok
}

func (v *Vault) deviceKeyFor(ctx context.Context, create bool) (*[keySize]byte, error) {
	var key [keySize]byte
	data, err := v.store.Get(ctx, v.deviceKey)
	switch {
	case err == nil && len(data) == keySize:
		copy(key[:], data)
		return &key, nil
	case err == nil:
		if !create {
			return nil, fmt.Errorf("device key has wrong size")
		}
	case !errors.Is(err, perrors.ErrNotFound):
		return nil, fmt.Errorf("failed to read device key: %w", err)
	case !create:
		return nil, fmt.Errorf("device key missing")
	}

	if _, err := io.ReadFull(v.random, key[:]); err != nil {
		return nil, fmt.Errorf("failed to generate device key: %w", err)
	}
	if err := v.store.Put(ctx, v.deviceKey, key[:]); err != nil {
		return nil, fmt.Errorf("failed to persist device key: %w", err)
	}
	return &key, nil
}
