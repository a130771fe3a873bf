// Package vault persists per-user conversation transcripts in a
// size-bounded key-value record and rehydrates them across sessions.
package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/akn300666-cpu/Evolution-v2.0/internal/chat"
)

const (
	keyPrefix    = "eve_vault_v1_"
	backupPrefix = "eve_backup_v1_"
)

// Vault owns the persisted representation of a user's session. The
// in-memory transcript always remains the source of truth; a failed
// write costs durability, never correctness.
type Vault struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Vault {
	return &Vault{store: store, now: time.Now}
}

func (v *Vault) key(user string) string    { return keyPrefix + user }
func (v *Vault) bakKey(user string) string { return backupPrefix + user }

// Save compresses the transcript and writes it under the user's key.
// A capacity rejection triggers one retry with every image stripped;
// if that also overflows, the failure is logged and dropped. Save is a
// no-op for an empty user.
func (v *Vault) Save(user string, messages []chat.Message, tier chat.Tier) error {
	if user == "" {
		return nil
	}

	optimized := Compress(messages)
	if err := v.write(user, optimized, tier); err == nil {
		log.Printf("[vault] saved %d messages for %s", len(optimized), user)
		return nil
	} else if !errors.Is(err, ErrCapacity) {
		return err
	}

	log.Printf("[vault] capacity critical for %s, stripping all images to save text history", user)
	textOnly := StripImages(messages)
	if err := v.write(user, textOnly, tier); err != nil {
		if errors.Is(err, ErrCapacity) {
			log.Printf("[vault] emergency text backup failed for %s: %v", user, err)
			return nil
		}
		return err
	}
	return nil
}

func (v *Vault) write(user string, messages []chat.Message, tier chat.Tier) error {
	record := chat.Session{
		Messages:    messages,
		Tier:        tier,
		LastUpdated: v.now().UnixMilli(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("serialize session: %w", err)
	}
	return v.store.Set(v.key(user), string(data))
}

// Load returns the stored session, reporting false for an empty user,
// a missing record, or one that no longer parses. A legacy record that
// is a bare message array is normalized to a core-tier session.
func (v *Vault) Load(user string) (chat.Session, bool) {
	if user == "" {
		return chat.Session{}, false
	}

	raw, ok, err := v.store.Get(v.key(user))
	if err != nil {
		log.Printf("[vault] load %s: %v", user, err)
		return chat.Session{}, false
	}
	if !ok {
		return chat.Session{}, false
	}

	session, ok := v.parse(raw)
	if !ok {
		log.Printf("[vault] failed to parse session for %s", user)
	}
	return session, ok
}

func (v *Vault) parse(raw string) (chat.Session, bool) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") {
		// Legacy shape: a bare message array with no envelope.
		var messages []chat.Message
		if err := json.Unmarshal([]byte(trimmed), &messages); err != nil {
			return chat.Session{}, false
		}
		return chat.Session{
			Messages:    messages,
			Tier:        chat.TierCore,
			LastUpdated: v.now().UnixMilli(),
		}, true
	}

	var session chat.Session
	if err := json.Unmarshal([]byte(trimmed), &session); err != nil {
		return chat.Session{}, false
	}
	session.Tier = chat.NormalizeTier(string(session.Tier))
	return session, true
}

// Clear deletes the user's record. Clearing a missing record is fine.
func (v *Vault) Clear(user string) error {
	if user == "" {
		return nil
	}
	if err := v.store.Remove(v.key(user)); err != nil {
		return fmt.Errorf("clear vault: %w", err)
	}
	log.Printf("[vault] cleared for %s", user)
	return nil
}

// Backup copies the user's current record to the backup key. Nothing
// to back up is not an error.
func (v *Vault) Backup(user string) error {
	if user == "" {
		return nil
	}
	raw, ok, err := v.store.Get(v.key(user))
	if err != nil {
		return fmt.Errorf("read record for backup: %w", err)
	}
	if !ok {
		return nil
	}
	if err := v.store.Set(v.bakKey(user), raw); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	return nil
}

// RestoreFromBackup returns the last backed-up session, if any.
func (v *Vault) RestoreFromBackup(user string) (chat.Session, bool) {
	if user == "" {
		return chat.Session{}, false
	}
	raw, ok, err := v.store.Get(v.bakKey(user))
	if err != nil || !ok {
		return chat.Session{}, false
	}
	return v.parse(raw)
}
