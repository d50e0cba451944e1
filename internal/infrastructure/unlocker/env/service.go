package envunlocker

import (
	"context"
	"fmt"
	"strings"

	"github.com/ark-network/pls/internal/core/ports"
)

// unlocker hands out the password read from the environment at startup.
type unlocker struct {
	password string
}

// NewService keeps the given password, without the line break a shell
// heredoc or a secrets mount may append to it.
func NewService(password string) (ports.Unlocker, error) {
	password = strings.TrimRight(password, "\r\n")
	if len(strings.TrimSpace(password)) <= 0 {
		return nil, fmt.Errorf("env unlocker: password is empty")
	}
	return unlocker{password}, nil
}

func (u unlocker) GetPassword(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return u.password, nil
}
