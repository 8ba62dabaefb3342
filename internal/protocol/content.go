package protocol

import (
	"encoding/json"
	"sync"
)

// Message type strings handled at the protocol layer.
const (
	MsgTypeKernelInfoRequest = "kernel_info_request"
	MsgTypeKernelInfoReply   = "kernel_info_reply"
	MsgTypeExecuteRequest    = "execute_request"
	MsgTypeExecuteReply      = "execute_reply"
	MsgTypeExecuteResult     = "execute_result"
	MsgTypeExecuteInput      = "execute_input"
	MsgTypeStatus            = "status"
	MsgTypeStream            = "stream"
	MsgTypeDisplayData       = "display_data"
	MsgTypeUpdateDisplayData = "update_display_data"
	MsgTypeError             = "error"
	MsgTypeInterruptRequest  = "interrupt_request"
	MsgTypeInterruptReply    = "interrupt_reply"
	MsgTypeShutdownRequest   = "shutdown_request"
	MsgTypeShutdownReply     = "shutdown_reply"
	MsgTypeCompleteRequest   = "complete_request"
	MsgTypeCompleteReply     = "complete_reply"
	MsgTypeCommOpen          = "comm_open"
	MsgTypeCommMsg           = "comm_msg"
	MsgTypeCommClose         = "comm_close"
)

// Execution states published on the status channel.
const (
	StateStarting = "starting"
	StateBusy     = "busy"
	StateIdle     = "idle"
)

// Reply statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusAbort = "abort"
)

// Stream names.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// RawContent carries the content of a message whose type has no registered
// decoder. The bytes are preserved exactly as received so unknown types
// round-trip unchanged.
type RawContent json.RawMessage

// MarshalJSON emits the preserved bytes verbatim.
func (r RawContent) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("{}"), nil
	}
	return []byte(r), nil
}

// UnmarshalJSON stores the raw bytes without interpreting them.
func (r *RawContent) UnmarshalJSON(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}

// KernelInfoRequest has no fields.
type KernelInfoRequest struct{}

// LanguageInfo describes the kernel's language in a kernel_info_reply.
type LanguageInfo struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	MimeType      string `json:"mimetype,omitempty"`
	FileExtension string `json:"file_extension,omitempty"`
}

// KernelInfoReply answers a kernel_info_request.
type KernelInfoReply struct {
	Status                string       `json:"status"`
	ProtocolVersion       string       `json:"protocol_version"`
	Implementation        string       `json:"implementation"`
	ImplementationVersion string       `json:"implementation_version"`
	LanguageInfo          LanguageInfo `json:"language_info"`
	Banner                string       `json:"banner,omitempty"`
}

// ExecuteRequest asks the kernel to run a cell of code.
type ExecuteRequest struct {
	Code            string                 `json:"code"`
	Silent          bool                   `json:"silent"`
	StoreHistory    bool                   `json:"store_history"`
	UserExpressions map[string]interface{} `json:"user_expressions,omitempty"`
	AllowStdin      bool                   `json:"allow_stdin"`
	StopOnError     bool                   `json:"stop_on_error"`
}

// ExecuteReply reports the outcome of an execute_request. ExecutionCount is a
// pointer without omitempty on purpose: aborted requests must serialize it as
// an explicit null.
type ExecuteReply struct {
	Status         string   `json:"status"`
	ExecutionCount *int     `json:"execution_count"`
	EName          string   `json:"ename,omitempty"`
	EValue         string   `json:"evalue,omitempty"`
	Traceback      []string `json:"traceback,omitempty"`
}

// ExecuteInput re-broadcasts the code being executed together with its
// execution count, so all frontends can show In[n].
type ExecuteInput struct {
	Code           string `json:"code"`
	ExecutionCount int    `json:"execution_count"`
}

// ExecuteResult carries the Out[n] value of a successful execution as a
// mimetype bundle.
type ExecuteResult struct {
	ExecutionCount int                    `json:"execution_count"`
	Data           map[string]interface{} `json:"data"`
	Metadata       map[string]interface{} `json:"metadata"`
}

// Status publishes the kernel execution state on IOPub.
type Status struct {
	ExecutionState string `json:"execution_state"`
}

// Stream carries stdout or stderr text.
type Stream struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// DisplayData publishes a display bundle; Transient.display_id allows later
// in-place updates via update_display_data.
type DisplayData struct {
	Data      map[string]interface{} `json:"data"`
	Metadata  map[string]interface{} `json:"metadata"`
	Transient map[string]interface{} `json:"transient,omitempty"`
}

// ErrorContent reports an execution error on IOPub.
type ErrorContent struct {
	EName     string   `json:"ename"`
	EValue    string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

// InterruptRequest has no fields.
type InterruptRequest struct{}

// InterruptReply acknowledges an interrupt_request.
type InterruptReply struct {
	Status string `json:"status"`
}

// ShutdownRequest asks the kernel to exit, or to restart when Restart is set.
type ShutdownRequest struct {
	Restart bool `json:"restart"`
}

// ShutdownReply acknowledges a shutdown_request.
type ShutdownReply struct {
	Status  string `json:"status"`
	Restart bool   `json:"restart"`
}

// CompleteRequest asks for completions of Code at CursorPos.
type CompleteRequest struct {
	Code      string `json:"code"`
	CursorPos int    `json:"cursor_pos"`
}

// CompleteReply answers a complete_request.
type CompleteReply struct {
	Status      string                 `json:"status"`
	Matches     []string               `json:"matches"`
	CursorStart int                    `json:"cursor_start"`
	CursorEnd   int                    `json:"cursor_end"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// CommOpen opens a comm session for the named target.
type CommOpen struct {
	CommID     string          `json:"comm_id"`
	TargetName string          `json:"target_name"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// CommMsg carries a payload on an established comm session.
type CommMsg struct {
	CommID string          `json:"comm_id"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// CommClose tears down a comm session, from either side.
type CommClose struct {
	CommID string          `json:"comm_id"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// ContentRegistry maps message type strings to content decoders. The type set
// is open: a lookup miss is not an error, the codec falls back to RawContent.
type ContentRegistry struct {
	mu       sync.RWMutex
	decoders map[string]func() interface{}
}

// NewContentRegistry returns a registry pre-populated with every content type
// the protocol layer understands.
func NewContentRegistry() *ContentRegistry {
	r := &ContentRegistry{decoders: make(map[string]func() interface{})}
	r.Register(MsgTypeKernelInfoRequest, func() interface{} { return &KernelInfoRequest{} })
	r.Register(MsgTypeKernelInfoReply, func() interface{} { return &KernelInfoReply{} })
	r.Register(MsgTypeExecuteRequest, func() interface{} { return &ExecuteRequest{} })
	r.Register(MsgTypeExecuteReply, func() interface{} { return &ExecuteReply{} })
	r.Register(MsgTypeExecuteInput, func() interface{} { return &ExecuteInput{} })
	r.Register(MsgTypeExecuteResult, func() interface{} { return &ExecuteResult{} })
	r.Register(MsgTypeStatus, func() interface{} { return &Status{} })
	r.Register(MsgTypeStream, func() interface{} { return &Stream{} })
	r.Register(MsgTypeDisplayData, func() interface{} { return &DisplayData{} })
	r.Register(MsgTypeUpdateDisplayData, func() interface{} { return &DisplayData{} })
	r.Register(MsgTypeError, func() interface{} { return &ErrorContent{} })
	r.Register(MsgTypeInterruptRequest, func() interface{} { return &InterruptRequest{} })
	r.Register(MsgTypeInterruptReply, func() interface{} { return &InterruptReply{} })
	r.Register(MsgTypeShutdownRequest, func() interface{} { return &ShutdownRequest{} })
	r.Register(MsgTypeShutdownReply, func() interface{} { return &ShutdownReply{} })
	r.Register(MsgTypeCompleteRequest, func() interface{} { return &CompleteRequest{} })
	r.Register(MsgTypeCompleteReply, func() interface{} { return &CompleteReply{} })
	r.Register(MsgTypeCommOpen, func() interface{} { return &CommOpen{} })
	r.Register(MsgTypeCommMsg, func() interface{} { return &CommMsg{} })
	r.Register(MsgTypeCommClose, func() interface{} { return &CommClose{} })
	return r
}

// Register installs a decoder for a message type. The last registration for a
// type wins, which lets embedders override the defaults.
func (r *ContentRegistry) Register(msgType string, newContent func() interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[msgType] = newContent
}

// New returns a fresh content value for the message type, or false when the
// type is unknown.
func (r *ContentRegistry) New(msgType string) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	newContent, ok := r.decoders[msgType]
	if !ok {
		return nil, false
	}
	return newContent(), true
}
