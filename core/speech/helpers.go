package speech

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const utteranceIDPrefix = "utterance_"

func utteranceID(index int64) string {
	return utteranceIDPrefix + strconv.FormatInt(index, 10)
}

// parseUtteranceID returns the index encoded by utteranceID, or false for
// identifiers this controller never issued.
func parseUtteranceID(id string) (int64, bool) {
	raw, ok := strings.CutPrefix(id, utteranceIDPrefix)
	if !ok {
		logger.Warn("bad utterance id", "utterance_id", id)
		return -1, false
	}

	index, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		logger.Warn("bad utterance id", "utterance_id", id, "error", err)
		return -1, false
	}
	return index, true
}

type workerRun func(context.Context) error

func panicSafeNamedWorker(name string, run func(context.Context) error) workerRun {
	return func(ctx context.Context) (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("%s worker panicked: %v", name, recovered)
			}
		}()

		if err = run(ctx); err != nil {
			return fmt.Errorf("%s worker failed: %w", name, err)
		}

		return nil
	}
}

// notify runs a collaborator callback and keeps its panics away from the
// worker.
func notify(name string, callback func()) {
	if callback == nil {
		return
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("speech callback panicked", "callback", name, "panic", recovered)
		}
	}()
	callback()
}
