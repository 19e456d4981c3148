package utils

import (
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const nanoIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateNanoIDWithPrefix returns ids like "rpt_x7k2m9q4p1ab".
func GenerateNanoIDWithPrefix(prefix string, length int) string {
	id, _ := gonanoid.Generate(nanoIDAlphabet, length)
	return fmt.Sprintf("%s_%s", prefix, id)
}

// Now returns the current time in UTC, the only clock used across the service.
func Now() time.Time {
	return time.Now().UTC()
}

func NowPtr() *time.Time {
	return TimePtr(Now())
}
