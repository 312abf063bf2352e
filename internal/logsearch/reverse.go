package logsearch

import (
	"context"
	"strings"
	"sync"
	"time"

	"opsdeck/internal/logger"
	"opsdeck/internal/sshpool"
)

// sedReverse works everywhere tac does not (BSD/macOS userlands).
const sedReverse = "sed '1!G;h;$!d'"

const probeTimeout = 5 * time.Second

// reverseProbe picks the reverse-order filter per endpoint: tac when the
// remote has it, the sed fallback otherwise. The probe runs once per
// endpoint key and the choice is cached for the process lifetime.
type reverseProbe struct {
	mu    sync.Mutex
	cache map[string]string
}

func newReverseProbe() *reverseProbe {
	return &reverseProbe{cache: map[string]string{}}
}

func (r *reverseProbe) toolFor(ctx context.Context, runner Runner, endpoint sshpool.Endpoint) string {
	key := endpoint.Key()

	r.mu.Lock()
	if tool, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return tool
	}
	r.mu.Unlock()

	tool := sedReverse
	res, err := runner.Run(ctx, endpoint, "which tac", probeTimeout)
	if err == nil && res.ExitCode == 0 && strings.TrimSpace(res.Stdout) != "" {
		tool = "tac"
	}
	logger.Debug("reverse filter for %s: %s", key, tool)

	r.mu.Lock()
	r.cache[key] = tool
	r.mu.Unlock()

	return tool
}
