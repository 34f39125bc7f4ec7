package probe

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	dataPrefix    = "data:"
	doneSentinel  = "[DONE]"
	maxErrorBody  = 1024
	defaultUserID = "gaolou"
)

// ProgressSink receives incremental in-flight progress from a probe. It is
// the only channel through which a request that has not yet completed
// becomes visible to the aggregator.
type ProgressSink interface {
	RecordProgress(workerID int, chunks, tokens int, at time.Time)
}

// Request describes one streaming probe invocation.
type Request struct {
	Query          string
	ConversationID string
	User           string
	APIKey         string
	WorkerID       int
	Sink           ProgressSink
}

// fileRef mirrors the file attachment shape of the chat-messages API.
type fileRef struct {
	Type           string `json:"type"`
	TransferMethod string `json:"transfer_method"`
	URL            string `json:"url"`
}

type requestBody struct {
	Inputs         map[string]string `json:"inputs"`
	Query          string            `json:"query"`
	ResponseMode   string            `json:"response_mode"`
	ConversationID string            `json:"conversation_id"`
	User           string            `json:"user"`
	Files          []fileRef         `json:"files"`
}

// Prober issues single streaming requests against the target endpoint and
// derives per-request metrics. It is safe for concurrent use: all request
// state lives on the stack of Probe.
type Prober struct {
	client  *http.Client
	target  string
	timeout time.Duration
}

// NewProber creates a prober for the given chat-messages URL. The timeout
// bounds one whole request including the streamed body; 0 means no limit
// beyond the client's own.
func NewProber(client *http.Client, target string, timeout time.Duration) *Prober {
	return &Prober{client: client, target: target, timeout: timeout}
}

// Probe executes one request/response cycle and returns its Result.
// Transport and HTTP failures are converted into a Result with Err set and
// whatever timestamps were accumulated before the failure; Probe never
// returns a Go error to the caller.
func (p *Prober) Probe(ctx context.Context, req Request) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	res := Result{
		WorkerID:       req.WorkerID,
		Query:          req.Query,
		ConversationID: req.ConversationID,
	}

	user := req.User
	if user == "" {
		user = defaultUserID
	}
	payload, err := json.Marshal(requestBody{
		Inputs:         map[string]string{"query": req.Query},
		Query:          req.Query,
		ResponseMode:   "streaming",
		ConversationID: req.ConversationID,
		User:           user,
		Files: []fileRef{{
			Type:           "image",
			TransferMethod: "remote_url",
			URL:            "https://example.com/logo.png",
		}},
	})
	if err != nil {
		res.Err = fmt.Sprintf("encode request body: %v", err)
		return res
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.target, bytes.NewReader(payload))
	if err != nil {
		res.Err = fmt.Sprintf("create request: %v", err)
		return res
	}
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}
	httpReq.Header.Set("Authorization", bearerToken(req.APIKey))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	res.RequestStart = time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		res.Err = err.Error()
		res.RequestEnd = time.Now()
		res.finalize(nil)
		return res
	}
	defer resp.Body.Close()

	res.ConnectEnd = time.Now()
	res.StatusCode = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		res.Err = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		res.RequestEnd = time.Now()
		res.finalize(nil)
		return res
	}

	tokenTimes := p.readStream(resp.Body, req, &res)
	res.RequestEnd = time.Now()
	res.finalize(tokenTimes)
	return res
}

// readStream consumes the SSE body line by line, updating timestamps and
// counters on res. Returns the per-token timestamp list used for TPOT.
func (p *Prober) readStream(body io.Reader, req Request, res *Result) []time.Time {
	var (
		tokenTimes []time.Time
		answer     strings.Builder
		reader     = bufio.NewReader(body)
	)

	for {
		line, err := reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")

		if line != "" {
			now := time.Now()
			if res.FirstByte.IsZero() {
				res.FirstByte = now
			}
			res.LastByte = now
			p.consumeLine(line, req, res, &tokenTimes, &answer)
		} else if err == nil {
			// Blank separator lines still advance the last-byte clock.
			res.LastByte = time.Now()
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				res.Err = err.Error()
			}
			break
		}
	}

	res.Answer = answer.String()
	return tokenTimes
}

func (p *Prober) consumeLine(line string, req Request, res *Result, tokenTimes *[]time.Time, answer *strings.Builder) {
	if !strings.HasPrefix(line, dataPrefix) {
		return
	}
	data := strings.TrimPrefix(line, dataPrefix)
	if len(data) > 0 && data[0] == ' ' {
		data = data[1:]
	}
	data = strings.TrimSpace(data)
	if data == "" || data == doneSentinel {
		return
	}

	// Heterogeneous stream content is expected; non-JSON payloads are not
	// an error.
	if !gjson.Valid(data) {
		return
	}

	if v := gjson.Get(data, "conversation_id"); v.Exists() {
		res.ConversationID = v.String()
	}
	if v := gjson.Get(data, "message_id"); v.Exists() {
		res.MessageID = v.String()
	}

	fragment := gjson.Get(data, "answer")
	if !fragment.Exists() {
		return
	}

	text := fragment.String()
	tokens := EstimateTokens(text)
	now := time.Now()

	if res.FirstToken.IsZero() {
		res.FirstToken = now
	}
	for i := 0; i < tokens; i++ {
		*tokenTimes = append(*tokenTimes, now)
	}
	res.ChunkCount++
	res.TokenCount += tokens
	answer.WriteString(text)

	if req.Sink != nil {
		req.Sink.RecordProgress(req.WorkerID, 1, tokens, now)
	}
}

// bearerToken normalizes an API key into an Authorization header value,
// leaving keys that already carry the Bearer prefix untouched.
func bearerToken(key string) string {
	if strings.HasPrefix(key, "Bearer ") {
		return key
	}
	return "Bearer " + key
}
