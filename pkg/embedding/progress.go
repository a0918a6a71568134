package embedding

type progressUpdate struct {
	processed int
	total     int
}

// progressReporter hands updates to a separate goroutine through a one-slot
// channel. A slow callback never stalls the batch loop; pending updates are
// coalesced so the callback always sees the latest count.
type progressReporter struct {
	ch   chan progressUpdate
	done chan struct{}
}

func newProgressReporter(fn ProgressFunc) *progressReporter {
	if fn == nil {
		return nil
	}
	r := &progressReporter{
		ch:   make(chan progressUpdate, 1),
		done: make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		for u := range r.ch {
			fn(u.processed, u.total)
		}
	}()
	return r
}

func (r *progressReporter) report(processed, total int) {
	if r == nil {
		return
	}
	u := progressUpdate{processed: processed, total: total}
	select {
	case r.ch <- u:
		return
	default:
	}
	// replace the stale pending update
	select {
	case <-r.ch:
	default:
	}
	select {
	case r.ch <- u:
	default:
	}
}

// close flushes the pending update and blocks until the callback returns.
// Callers rely on no update arriving after close.
func (r *progressReporter) close() {
	if r == nil {
		return
	}
	close(r.ch)
	<-r.done
}
