package utils

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/oklog/ulid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/variable-kang/0.9to0.10MirrorMaker/constants"
	"github.com/variable-kang/0.9to0.10MirrorMaker/crypto"
)

// Ternary is a one-line if-else; callers type-assert the result.
func Ternary(cond bool, a, b any) any {
	if cond {
		return a
	}
	return b
}

// ULID returns a lexicographically sortable unique id.
func ULID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// SplitAndTrim splits a comma separated list, trimming whitespace and
// dropping empty items.
func SplitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Unmarshal reshapes one structure into another through JSON.
func Unmarshal(data any, dest any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to remarshal: %w", err)
	}
	return json.Unmarshal(raw, dest)
}

// UnmarshalFile reads a JSON config file into dest, decrypting it first when
// requested and an encryption key is configured.
func UnmarshalFile(filePath string, dest any, decrypt bool) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", filePath, err)
	}
	if decrypt && viper.GetString(constants.EncryptionKey) != "" {
		decrypted, err := crypto.DecryptConfig(string(data))
		if err != nil {
			return fmt.Errorf("failed to decrypt file %s: %w", filePath, err)
		}
		data = []byte(decrypted)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal file %s: %w", filePath, err)
	}
	return nil
}

// IsValidSubcommand reports whether def names one of the registered subcommands.
func IsValidSubcommand(available []*cobra.Command, def string) bool {
	for _, cmd := range available {
		if def == cmd.Use {
			return true
		}
	}
	return false
}
