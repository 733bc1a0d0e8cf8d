package assignment

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	serialAlphabet = "abcdefghijklmnopqrstuvwxyz1234567890"
	serialPartLen  = 6

	// serialStampLayout is yy dd MM ss mm HH, read as one decimal number.
	serialStampLayout = "060201050415"
)

// GenerateSerial returns PREFIX-<stamp>-<rand>-<rand> where stamp is the
// hexadecimal value of the clock digits and each rand part is six
// characters of [a-z0-9]. The result is upper-cased like every stored serial.
func GenerateSerial(prefix string, now time.Time) (string, error) {
	stamp, err := strconv.ParseInt(now.Format(serialStampLayout), 10, 64)
	if err != nil {
		return "", fmt.Errorf("formatting serial stamp: %w", err)
	}

	parts := []string{prefix, strconv.FormatInt(stamp, 16)}
	for range 2 {
		id, err := gonanoid.Generate(serialAlphabet, serialPartLen)
		if err != nil {
			return "", fmt.Errorf("generating serial suffix: %w", err)
		}
		parts = append(parts, id)
	}
	return strings.ToUpper(strings.Join(parts, "-")), nil
}
