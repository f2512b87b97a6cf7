package random

import (
	"strings"

	gutils "github.com/Laisky/go-utils/v5"
)

// GetUUID generates a UUIDv7 and returns it as a string without hyphens.
// It uses [github.com/Laisky/go-utils/v5]'s UUID7 for UUID generation.
//
// [github.com/Laisky/go-utils/v5]: https://pkg.go.dev/github.com/Laisky/go-utils/v5
func GetUUID() string {
	code := gutils.UUID7()
	code = strings.ReplaceAll(code, "-", "")
	return code
}
