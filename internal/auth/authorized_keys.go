package auth

import (
	"bufio"
	"fmt"
	"os"

	"github.com/shurlinet/meshgit/pkg/netcore"
)

// LoadAuthorizedKeys loads and parses an authorized_keys file.
// Format: <peer-id> [key=value attrs...] [# comment]
func LoadAuthorizedKeys(path string) (map[netcore.PeerId]bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open authorized_keys file: %w", err)
	}
	defer file.Close()

	authorizedPeers := make(map[netcore.PeerId]bool)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		peerIDStr, _, _ := parseLine(scanner.Text())
		if peerIDStr == "" {
			continue
		}

		peerID, err := netcore.ParsePeerId(peerIDStr)
		if err != nil {
			return nil, fmt.Errorf("invalid peer ID at line %d: %s (error: %w)", lineNum, peerIDStr, err)
		}

		authorizedPeers[peerID] = true
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading authorized_keys file: %w", err)
	}

	return authorizedPeers, nil
}

// IsAuthorized checks if a peer ID is in the authorized list.
func IsAuthorized(peerID netcore.PeerId, authorizedPeers map[netcore.PeerId]bool) bool {
	return authorizedPeers[peerID]
}
