package tools

// Result is the unified return type from tool execution.
type Result struct {
	ForLLM   string `json:"for_llm"`            // content sent back to the LLM
	ForUser  string `json:"for_user,omitempty"` // content shown to the user directly
	Rejected bool   `json:"rejected"`           // intent refused by a business rule
	IsError  bool   `json:"is_error"`           // collaborator or storage failure
	Err      error  `json:"-"`                  // internal error (not serialized)
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

func UserResult(content string) *Result {
	return &Result{ForLLM: content, ForUser: content}
}

// RejectResult marks an intent the business rules refused. The message is
// fed back to the LLM so it can correct itself; it is not a system error
// and never counts toward the emergency threshold.
func RejectResult(message string) *Result {
	return &Result{ForLLM: message, Rejected: true}
}

func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}
