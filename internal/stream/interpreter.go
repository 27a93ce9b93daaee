package stream

// Interpreter accumulates records for the lifetime of one execution.
// It is not safe for concurrent use; a single reader goroutine owns it.
type Interpreter struct {
	state   State
	records []Record
	result  *Result
	initSID string
}

// NewInterpreter returns an empty Interpreter.
func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

// Feed decodes chunk and returns the records completed by it.
func (in *Interpreter) Feed(chunk []byte) []Record {
	var recs []Record
	in.state, recs = Feed(in.state, chunk)
	in.observe(recs)
	return recs
}

// Flush decodes any trailing unterminated line. Call once at EOF.
func (in *Interpreter) Flush() []Record {
	var recs []Record
	in.state, recs = Flush(in.state)
	in.observe(recs)
	return recs
}

func (in *Interpreter) observe(recs []Record) {
	for _, r := range recs {
		in.records = append(in.records, r)
		switch {
		case r.Kind == KindResult:
			in.result = r.Result
		case r.Type == "system" && r.Subtype == "init" && r.SessionID != "":
			in.initSID = r.SessionID
		}
	}
}

// Records returns every record decoded so far, in arrival order.
func (in *Interpreter) Records() []Record {
	return in.records
}

// Result returns the last result record, or nil if none arrived.
func (in *Interpreter) Result() *Result {
	return in.result
}

// SessionID returns the result's session id, falling back to the id
// announced by the system init record when no result arrived.
func (in *Interpreter) SessionID() string {
	if in.result != nil && in.result.SessionID != "" {
		return in.result.SessionID
	}
	return in.initSID
}
