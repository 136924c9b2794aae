package service

import (
	"fmt"

	"github.com/wricardo/groupcart/group/session"
)

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", session.ErrInvalidInput, msg)
}
