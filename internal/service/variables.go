package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/ussd-gateway-go/internal/repository"
	"github.com/openclaw/ussd-gateway-go/internal/util"
)

// VariableSet is the decoded variable map of one session.
type VariableSet struct {
	Values map[string]string
	sealed map[string]bool
}

// Sealed reports whether name is stored encrypted.
func (v VariableSet) Sealed(name string) bool {
	return v.sealed[name]
}

// VariableStore reads and writes session variables, encrypting secrets
// when an encryption key is configured.
type VariableStore struct {
	repo          repository.VariableRepository
	encryptionKey string
}

func NewVariableStore(repo repository.VariableRepository, encryptionKey string) *VariableStore {
	return &VariableStore{repo: repo, encryptionKey: encryptionKey}
}

func (s *VariableStore) Load(ctx context.Context, sessionID string) (VariableSet, error) {
	rows, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return VariableSet{}, fmt.Errorf("list session variables: %w", err)
	}

	set := VariableSet{Values: make(map[string]string, len(rows)), sealed: map[string]bool{}}
	for _, row := range rows {
		value := row.Value
		if s.encryptionKey != "" {
			plain, err := util.Open(s.encryptionKey, row.Value)
			if err != nil {
				log.Warn().Err(err).Str("sessionId", sessionID).Str("variable", row.Name).Msg("failed to decrypt session variable")
				continue
			}
			if plain != row.Value {
				set.sealed[row.Name] = true
			}
			value = plain
		}
		set.Values[row.Name] = value
	}
	return set, nil
}

func (s *VariableStore) Set(ctx context.Context, sessionID, name, value string) error {
	if err := s.repo.Upsert(ctx, sessionID, name, value); err != nil {
		return fmt.Errorf("set variable %s: %w", name, err)
	}
	return nil
}

// SetSecret stores value encrypted. Without an encryption key it falls
// back to a plain write.
func (s *VariableStore) SetSecret(ctx context.Context, sessionID, name, value string) error {
	if s.encryptionKey == "" {
		return s.Set(ctx, sessionID, name, value)
	}
	sealed, err := util.Seal(s.encryptionKey, value)
	if err != nil {
		return fmt.Errorf("encrypt variable %s: %w", name, err)
	}
	return s.Set(ctx, sessionID, name, sealed)
}

// SetAll writes values in key order.
func (s *VariableStore) SetAll(ctx context.Context, sessionID string, values map[string]string) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := s.Set(ctx, sessionID, name, values[name]); err != nil {
			return err
		}
	}
	return nil
}
