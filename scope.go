package teflib

// Scope times a block of code and records it as one complete ("X") event.
//
//	s := tracer.Begin(nameWork, catPerf)
//	defer s.End()
//
// Deferring End records the event on every exit path, panics included.
// A Scope belongs to the goroutine that began it and must not be copied
// after Begin.
type Scope struct {
	tracer   *Tracer
	args     ArgumentList
	start    uint64
	thread   uint64
	name     StringID
	category StringID
	done     bool
}

// Begin starts a scope. While capture is disabled the returned scope is
// inert and End does nothing.
func (t *Tracer) Begin(name, category StringID) Scope {
	if !captureCompiled || !t.enabled.Load() {
		return Scope{done: true}
	}

	t.strings.mustBeRegistered(name)
	t.strings.mustBeRegistered(category)

	return Scope{
		tracer:   t,
		name:     name,
		category: category,
		thread:   goroutineID(),
		start:    t.timeline.now(),
	}
}

// AddArgument attaches an argument to the event End will record.
// No-op if the scope is inert or already ended.
func (s *Scope) AddArgument(arg Argument) {
	if s.done {
		return
	}
	s.tracer.strings.mustBeRegistered(arg.Key)
	s.args = append(s.args, arg)
}

// Active reports whether End will record an event.
func (s *Scope) Active() bool { return !s.done }

// End records the complete event. Safe to call multiple times - subsequent
// calls are no-ops.
func (s *Scope) End() {
	if s.done {
		return
	}
	s.done = true

	t := s.tracer
	if !t.enabled.Load() {
		return
	}

	end := t.timeline.now()
	t.buffer.add(Event{
		Name:      s.name,
		Category:  s.category,
		Phase:     PhaseComplete,
		Timestamp: s.start,
		Duration:  end - s.start,
		Thread:    s.thread,
	}, s.args)
	t.recorded.Add(1)
}
