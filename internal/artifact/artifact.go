// Package artifact loads compiler build outputs consumed during deployment
// and verification.
package artifact

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/chainplan/internal/fsjson"
)

type (
	// Artifact is a single contract's compilation output.
	Artifact struct {
		ContractName     string                                 `json:"contractName"`
		SourceName       string                                 `json:"sourceName"`
		ABI              json.RawMessage                        `json:"abi"`
		Bytecode         string                                 `json:"bytecode"`
		DeployedBytecode string                                 `json:"deployedBytecode"`
		LinkReferences   map[string]map[string][]LinkReference  `json:"linkReferences"`
		BuildInfoID      string                                 `json:"buildInfoId,omitempty"`

		parsedOnce sync.Once
		parsed     abi.ABI
		parseErr   error
	}

	// LinkReference is one library placeholder position inside the bytecode.
	LinkReference struct {
		Start  int `json:"start"`
		Length int `json:"length"`
	}

	// Store loads and caches artifacts from a build output directory.
	Store struct {
		dir    string
		reader fsjson.Reader

		mu    sync.Mutex
		cache map[string]*Artifact
	}
)

// Parsed returns the decoded ABI, parsing it on first use.
func (a *Artifact) Parsed() (abi.ABI, error) {
	a.parsedOnce.Do(func() {
		a.parsed, a.parseErr = abi.JSON(strings.NewReader(string(a.ABI)))
	})
	if a.parseErr != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ABI of %s: %w", a.ContractName, a.parseErr)
	}
	return a.parsed, nil
}

// LinkedBytecode substitutes the given library addresses into the creation
// bytecode at the recorded link-reference offsets.
func (a *Artifact) LinkedBytecode(libraries map[string]common.Address) ([]byte, error) {
	code := strings.TrimPrefix(a.Bytecode, "0x")

	for sourceName, libs := range a.LinkReferences {
		for libName, refs := range libs {
			address, ok := libraries[libName]
			if !ok {
				address, ok = libraries[sourceName+":"+libName]
			}
			if !ok {
				return nil, fmt.Errorf("missing library %q required by %s", libName, a.ContractName)
			}
			addressHex := strings.TrimPrefix(strings.ToLower(address.Hex()), "0x")
			for _, ref := range refs {
				start := ref.Start * 2
				end := start + ref.Length*2
				if end > len(code) {
					return nil, fmt.Errorf("link reference for %q is out of bytecode bounds", libName)
				}
				code = code[:start] + addressHex + code[end:]
			}
		}
	}

	if strings.Contains(code, "__$") {
		return nil, fmt.Errorf("bytecode of %s still contains unlinked placeholders", a.ContractName)
	}

	decoded := common.FromHex(code)
	if len(decoded) == 0 && len(code) > 0 {
		return nil, fmt.Errorf("bytecode of %s is not valid hex", a.ContractName)
	}
	return decoded, nil
}

// NewStore creates an artifact store reading from dir.
func NewStore(dir string, reader fsjson.Reader) *Store {
	return &Store{
		dir:    dir,
		reader: reader,
		cache:  map[string]*Artifact{},
	}
}

// Load reads the artifact for contractName (from <dir>/<contractName>.json),
// caching the result.
func (s *Store) Load(contractName string) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.cache[contractName]; ok {
		return cached, nil
	}

	var art Artifact
	path := fmt.Sprintf("%s/%s.json", s.dir, contractName)
	if err := s.reader.ReadJSON(path, &art); err != nil {
		return nil, fmt.Errorf("failed to load artifact %q: %w", contractName, err)
	}
	if art.ContractName == "" {
		art.ContractName = contractName
	}

	s.cache[contractName] = &art
	return &art, nil
}

// Has reports whether an artifact for contractName can be loaded.
func (s *Store) Has(contractName string) bool {
	_, err := s.Load(contractName)
	return err == nil
}
