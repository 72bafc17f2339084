package pipeline

// feed delivers events in order without ever blocking the publisher.
// Events queue in memory until the consumer reads them.
type feed struct {
	in  chan Event
	out chan Event
}

func newFeed() *feed {
	f := &feed{
		in:  make(chan Event),
		out: make(chan Event),
	}
	go f.pump()
	return f
}

func (f *feed) pump() {
	defer close(f.out)

	var queue []Event
	in := f.in
	for in != nil || len(queue) > 0 {
		var (
			out  chan Event
			next Event
		)
		if len(queue) > 0 {
			out = f.out
			next = queue[0]
		}

		select {
		case e, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, e)
		case out <- next:
			queue[0] = Event{}
			queue = queue[1:]
		}
	}
}

func (f *feed) publish(e Event) {
	f.in <- e
}

// close stops accepting events; out is closed once the queue drains
func (f *feed) close() {
	close(f.in)
}
