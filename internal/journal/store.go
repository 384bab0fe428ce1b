package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/chainplan/internal/artifact"
	"github.com/compose-network/chainplan/internal/fsjson"
	"github.com/compose-network/chainplan/internal/logger"
)

const (
	journalFileName   = "journal.jsonl"
	addressesFileName = "deployed_addresses.json"
	artifactsDirName  = "artifacts"
)

// Store persists a deployment directory: the append-only message journal,
// the per-future artifact copies, and the deployed-addresses index. Appends
// are synced to disk before the message is considered applied.
type Store struct {
	dir    string
	file   *os.File
	fs     *fsjson.FS
	logger *slog.Logger

	mu sync.Mutex
}

// Open opens (creating if needed) the deployment directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, artifactsDirName), 0755); err != nil {
		return nil, fmt.Errorf("failed to create deployment directory: %w", err)
	}

	file, err := os.OpenFile(filepath.Join(dir, journalFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	return &Store{
		dir:    dir,
		file:   file,
		fs:     fsjson.New(),
		logger: logger.Named("journal_store"),
	}, nil
}

// Close closes the journal file.
func (s *Store) Close() error {
	return s.file.Close()
}

// Append writes one message to the journal and flushes it to disk. The
// message is durable when Append returns.
func (s *Store) Append(msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal journal message: %w", err)
	}

	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append to journal: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync journal: %w", err)
	}

	return nil
}

// Apply appends the message and only then folds it into the given state,
// so durability always precedes visibility.
func (s *Store) Apply(state *DeploymentState, msg *Message) (*DeploymentState, error) {
	if err := s.Append(msg); err != nil {
		return nil, err
	}
	return Reduce(state, msg)
}

// ReadMessages returns the full ordered journal.
func (s *Store) ReadMessages() ([]*Message, error) {
	file, err := os.Open(filepath.Join(s.dir, journalFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal for reading: %w", err)
	}
	defer file.Close()

	var messages []*Message
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, fmt.Errorf("failed to decode journal message %d: %w", len(messages), err)
		}
		messages = append(messages, &msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	return messages, nil
}

// Replay rebuilds the deployment state from the journal. A missing or empty
// journal yields a nil state (nothing deployed yet).
func (s *Store) Replay() (*DeploymentState, error) {
	messages, err := s.ReadMessages()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if len(messages) == 0 {
		return nil, nil
	}

	state, err := ReduceAll(messages)
	if err != nil {
		return nil, err
	}

	s.logger.
		With("messages", len(messages)).
		With("futures", len(state.ExecutionStates)).
		Debug("journal replayed")

	return state, nil
}

// RecordDeployedAddress updates the deployed-addresses index. This lives
// outside the journal but is only written after the corresponding message
// has been applied.
func (s *Store) RecordDeployedAddress(futureID string, address common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, addressesFileName)

	addresses := map[string]string{}
	if err := s.fs.ReadJSON(path, &addresses); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read deployed addresses: %w", err)
	}

	addresses[futureID] = address.Hex()

	if err := s.fs.WriteJSON(path, addresses); err != nil {
		return fmt.Errorf("failed to write deployed addresses: %w", err)
	}

	return nil
}

// DeployedAddresses reads the deployed-addresses index.
func (s *Store) DeployedAddresses() (map[string]common.Address, error) {
	raw := map[string]string{}
	if err := s.fs.ReadJSON(filepath.Join(s.dir, addressesFileName), &raw); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]common.Address{}, nil
		}
		return nil, fmt.Errorf("failed to read deployed addresses: %w", err)
	}

	addresses := make(map[string]common.Address, len(raw))
	for id, hex := range raw {
		addresses[id] = common.HexToAddress(hex)
	}
	return addresses, nil
}

// StoreArtifact copies the artifact used by a future into the deployment
// directory for later verification.
func (s *Store) StoreArtifact(futureID string, art *artifact.Artifact) error {
	path := filepath.Join(s.dir, artifactsDirName, futureID+".json")
	if err := s.fs.WriteJSON(path, art); err != nil {
		return fmt.Errorf("failed to store artifact for %q: %w", futureID, err)
	}
	return nil
}
