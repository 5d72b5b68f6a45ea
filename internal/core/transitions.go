package core

// Pure state transitions. None of these perform I/O or touch a
// PreviewStore; the Workflow releases any handle a transition drops.

// Select applies a user selection. A media type outside the allow-list
// refuses the file. An accepted image keeps ref as its preview; any other
// accepted file has none. The current error is left as is.
func Select(s State, f File, ref PreviewRef) State {
	if err := CheckMediaType(f.MediaType); err != nil {
		return Refuse(s, err)
	}

	next := s.clone()
	selected := f
	next.File = &selected
	next.Selection++
	if IsImage(f.MediaType) {
		next.Preview = ref
	} else {
		next.Preview = ""
	}
	return next
}

// Refuse rejects a selection: the file and preview are cleared and err
// becomes the banner message.
func Refuse(s State, err *Error) State {
	next := s.clone()
	next.File = nil
	next.Preview = ""
	next.Err = err
	next.Selection++
	return next
}

// Begin marks a submission as outstanding. It fails with ErrSubmitInFlight
// when one already is, and with ErrNoFile when nothing is selected; s is
// returned unchanged in both cases.
func Begin(s State) (State, error) {
	if s.InFlight {
		return s, ErrSubmitInFlight
	}
	if s.File == nil {
		return s, ErrNoFile
	}
	next := s.clone()
	next.InFlight = true
	return next, nil
}

// Succeed applies a successful parse. Rows replace the previous sequence
// entirely and the error is cleared. The file and preview are cleared only
// when selection is still the current one, so a file picked while the
// request was outstanding survives.
func Succeed(s State, selection uint64, rows []Row) State {
	next := s.clone()
	next.Rows = make([]Row, len(rows))
	copy(next.Rows, rows)
	next.Err = nil
	next.InFlight = false
	if next.Selection == selection {
		next.File = nil
		next.Preview = ""
	}
	return next
}

// Reject applies a soft failure: the parser answered but reported no
// success. Only the error changes.
func Reject(s State) State {
	next := s.clone()
	next.Err = NewApplicationError(MsgParseFailed, ErrRejected)
	next.InFlight = false
	return next
}

// Fail applies a hard failure. Selection and rows are kept so the same file
// can be submitted again.
func Fail(s State, err *Error) State {
	if err == nil {
		err = NewTransportError("", nil)
	}
	next := s.clone()
	next.Err = err
	next.InFlight = false
	return next
}

// Clear drops the selection and its preview. Rows and error are kept.
func Clear(s State) State {
	next := s.clone()
	if next.File == nil && next.Preview == "" {
		return next
	}
	next.File = nil
	next.Preview = ""
	next.Selection++
	return next
}
