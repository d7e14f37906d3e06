package checksum

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// keySeparator cannot appear in a CSV field, so joined keys stay unambiguous.
const keySeparator = "\x1f"

func GetFileChecksum(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer file.Close()

	hasher := xxhash.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to copy file content to hasher for file %s: %w", filePath, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// CalculateHash hashes the given key parts into a stable hex digest.
func CalculateHash(parts ...string) string {
	digest := xxhash.New()
	digest.WriteString(strings.Join(parts, keySeparator))

	return hex.EncodeToString(digest.Sum(nil))
}
