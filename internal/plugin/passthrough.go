package plugin

// notifier is the outbound half of rpc.Bridge the passthrough needs.
type notifier interface {
	Notify(method string, params any)
}

// passthrough forwards every bus event to one plugin as a notification
// named after the event type.
type passthrough struct {
	cancel func()
	quit   chan struct{}
	done   chan struct{}
}

func startPassthrough(bus Bus, target notifier) *passthrough {
	ch, cancel := bus.SubscribeLossless()
	p := &passthrough{
		cancel: cancel,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		for {
			select {
			case <-p.quit:
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				target.Notify(ev.Type, ev.Args)
			}
		}
	}()
	return p
}

// stop unsubscribes and waits for the forwarder. No notification is sent
// after stop returns.
func (p *passthrough) stop() {
	close(p.quit)
	p.cancel()
	<-p.done
}
