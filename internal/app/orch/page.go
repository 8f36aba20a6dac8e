package orch

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/dkeye/Gather/internal/domain"
)

// Page tokens are opaque to callers and must round-trip unchanged.

const (
	definitionPage = "d"
	roomPage       = "r"
)

func encodeToken(kind, cursor string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(kind + ":" + cursor))
}

func decodeToken(kind, token string) (string, error) {
	if token == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: malformed page token", domain.ErrInvalidArgument)
	}
	k, cursor, ok := strings.Cut(string(raw), ":")
	if !ok || k != kind {
		return "", fmt.Errorf("%w: malformed page token", domain.ErrInvalidArgument)
	}
	return cursor, nil
}

func decodeSeqToken(kind, token string) (uint64, error) {
	cursor, err := decodeToken(kind, token)
	if err != nil || cursor == "" {
		return 0, err
	}
	seq, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed page token", domain.ErrInvalidArgument)
	}
	return seq, nil
}
