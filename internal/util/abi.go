// Package util holds the small set of chain-math and I/O helpers shared
// across components: ABI loading, hex/crypto helpers, gas-cost
// extraction, and V3 tick/sqrt-price conversions (the latter are not
// called by the Route Optimizer or the Price Impact Checker).
package util

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// LoadABI reads a bare ABI JSON array (the format returned by solc
// --abi or stored standalone) from path.
func LoadABI(path string) (*abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load abi %s: %w", path, err)
	}
	parsed, err := abi.JSON(strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parse abi %s: %w", path, err)
	}
	return &parsed, nil
}

// hardhatArtifact is the subset of a Hardhat compilation artifact this
// bot needs: the "abi" field, ignoring bytecode/sourceName/metadata.
type hardhatArtifact struct {
	ABI json.RawMessage `json:"abi"`
}

// LoadABIFromHardhatArtifact reads a full Hardhat artifact JSON file
// (contractName/abi/bytecode/...) and extracts just the ABI.
func LoadABIFromHardhatArtifact(path string) (*abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load hardhat artifact %s: %w", path, err)
	}
	var artifact hardhatArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("parse hardhat artifact %s: %w", path, err)
	}
	parsed, err := abi.JSON(strings.NewReader(string(artifact.ABI)))
	if err != nil {
		return nil, fmt.Errorf("parse abi from artifact %s: %w", path, err)
	}
	return &parsed, nil
}

// Hex2Bytes decodes a hex string, tolerating an optional "0x" prefix.
func Hex2Bytes(s string) []byte {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}
