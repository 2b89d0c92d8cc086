package source

import "log/slog"

// attempt runs fn up to n times, returning nil on the first success and
// the last error on exhaustion. Paging reads go over disk or network, so
// transient failures get a few more chances before the batch fails.
func attempt(n int, fn func() error) error {
	var err error
	for i := 1; ; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i >= n {
			return err
		}
		slog.Warn("retrying after error", "attempt", i, "of", n, "err", err)
	}
}
