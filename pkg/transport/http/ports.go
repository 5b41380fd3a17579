package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ErrNoFreePort is returned when every candidate port is taken.
var ErrNoFreePort = errors.New("no free port among candidates")

// bind listens on port when it is set, without fallback. Otherwise it
// tries candidates in order and takes the first free one.
func bind(ctx context.Context, port int, candidates []int) (net.Listener, error) {
	var lc net.ListenConfig

	if port != 0 {
		ln, err := lc.Listen(ctx, "tcp", ":"+strconv.Itoa(port))
		if err != nil {
			return nil, fmt.Errorf("binding port %d: %w", port, err)
		}
		return ln, nil
	}

	for _, p := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ln, err := lc.Listen(ctx, "tcp", ":"+strconv.Itoa(p))
		if err == nil {
			return ln, nil
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrNoFreePort, candidates)
}
