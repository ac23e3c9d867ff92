package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq      int64    `json:"seq"`
	Op       string   `json:"op"`
	ID       any      `json:"id,omitempty"`
	Outcome  string   `json:"outcome,omitempty"`
	Version  string   `json:"version,omitempty"`
	Key      string   `json:"key,omitempty"`
	Found    *bool    `json:"found,omitempty"`
	IDs      []any    `json:"ids,omitempty"`
	Versions []string `json:"versions,omitempty"`
	Deleted  int      `json:"deleted,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// canonical returns the event as a map for record.MarshalCanonical. Unset
// fields are left out.
func (e TraceEvent) canonical() map[string]any {
	m := map[string]any{
		"seq": e.Seq,
		"op":  e.Op,
	}
	if e.ID != nil {
		m["id"] = e.ID
	}
	if e.Outcome != "" {
		m["outcome"] = e.Outcome
	}
	if e.Version != "" {
		m["version"] = e.Version
	}
	if e.Key != "" {
		m["key"] = e.Key
	}
	if e.Found != nil {
		m["found"] = *e.Found
	}
	if e.IDs != nil {
		m["ids"] = e.IDs
	}
	if e.Versions != nil {
		versions := make([]any, len(e.Versions))
		for i, v := range e.Versions {
			versions[i] = v
		}
		m["versions"] = versions
	}
	if e.Op == OpDelete && e.Error == "" {
		m["deleted"] = int64(e.Deleted)
	}
	if e.Error != "" {
		m["error"] = e.Error
	}
	return m
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace lists executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds one message per failed expectation or assertion.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
