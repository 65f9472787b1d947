package ml

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrInferenceTimeout is returned when the inference process does not answer
// within the configured timeout.
var ErrInferenceTimeout = errors.New("inference timed out")

// ErrWorkerClosed is returned by a model whose worker has been shut down.
var ErrWorkerClosed = errors.New("inference worker closed")

const (
	kindBert     = "bert"
	kindFastText = "fasttext"

	maxResponseSize = 16 << 20
	stderrTailLines = 20
	stopGracePeriod = 5 * time.Second
)

// BridgeConfig configures the Python inference processes.
type BridgeConfig struct {
	// PythonPath is the interpreter; found automatically when empty.
	PythonPath string
	// ScriptPath is the inference script; the embedded script is written
	// there when the file does not exist.
	ScriptPath string
	// Timeout bounds a single prediction.
	Timeout time.Duration
	// LoadTimeout bounds starting a worker and loading its model.
	LoadTimeout time.Duration
}

// Bridge starts inference workers. A worker is one interpreter running the
// inference script: the first line it reads on stdin loads a model, every
// following line is a prediction request. Each request is answered with one
// JSON line on stdout carrying the request id.
type Bridge struct {
	pythonPath  string
	scriptPath  string
	timeout     time.Duration
	loadTimeout time.Duration
}

type workerRequest struct {
	ID        uint64       `json:"id"`
	Kind      string       `json:"kind,omitempty"`
	Config    *ModelConfig `json:"config,omitempty"`
	ModelPath string       `json:"model_path,omitempty"`
	TopK      int          `json:"top_k,omitempty"`
	Text      string       `json:"text,omitempty"`
	Inputs    []string     `json:"inputs,omitempty"`
}

type inferencePrediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type workerResponse struct {
	ID          uint64                `json:"id"`
	Ready       bool                  `json:"ready,omitempty"`
	Predictions []inferencePrediction `json:"predictions,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// NewBridge locates the interpreter and makes sure the inference script exists.
func NewBridge(cfg BridgeConfig) (*Bridge, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 5 * time.Minute
	}

	pythonPath := cfg.PythonPath
	if pythonPath == "" {
		p, err := findPython()
		if err != nil {
			return nil, err
		}
		pythonPath = p
	} else if _, err := os.Stat(pythonPath); err != nil {
		return nil, fmt.Errorf("python interpreter %s: %w", pythonPath, err)
	}

	scriptPath := cfg.ScriptPath
	if scriptPath == "" {
		scriptPath = filepath.Join(os.TempDir(), "isamples_inference_embedded.py")
	}
	if _, err := os.Stat(scriptPath); os.IsNotExist(err) {
		if err := createInferenceScript(scriptPath); err != nil {
			return nil, fmt.Errorf("create inference script: %w", err)
		}
		log.Info().Str("script_path", scriptPath).Msg("wrote embedded inference script")
	}

	return &Bridge{
		pythonPath:  pythonPath,
		scriptPath:  scriptPath,
		timeout:     cfg.Timeout,
		loadTimeout: cfg.LoadTimeout,
	}, nil
}

// worker owns the interpreter serving one model. Requests are serialized.
// A worker that crashes, times out or answers out of protocol is stopped and
// started again, reloading the model, on the next request.
type worker struct {
	bridge *Bridge
	name   string
	load   workerRequest

	sem    chan struct{}
	proc   *process
	seq    uint64
	starts int
	closed bool
}

// startWorker launches an interpreter and waits until it has loaded the
// model described by load.
func (b *Bridge) startWorker(ctx context.Context, name string, load workerRequest) (*worker, error) {
	w := &worker{
		bridge: b,
		name:   name,
		load:   load,
		sem:    make(chan struct{}, 1),
	}
	w.sem <- struct{}{}
	defer w.release()

	if err := w.start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *worker) acquire(ctx context.Context) error {
	select {
	case w.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *worker) release() {
	<-w.sem
}

func (w *worker) start(ctx context.Context) error {
	p, err := w.bridge.spawn(w.name)
	if err != nil {
		return err
	}
	w.starts++

	w.seq++
	load := w.load
	load.ID = w.seq
	resp, err := p.exchange(ctx, load, w.bridge.loadTimeout)
	if err == nil && resp.Error != "" {
		err = pythonError(resp.Error)
	}
	if err == nil && !resp.Ready {
		err = fmt.Errorf("inference process did not report ready")
	}
	if err != nil {
		log.Error().
			Err(err).
			Str("model", w.name).
			Str("python_path", w.bridge.pythonPath).
			Str("script_path", w.bridge.scriptPath).
			Str("stderr", p.stderrText()).
			Msg("Python inference worker failed to load model")
		p.stop(0)
		return err
	}

	log.Info().
		Str("model", w.name).
		Int("pid", p.cmd.Process.Pid).
		Int("starts", w.starts).
		Msg("inference worker ready")
	w.proc = p
	return nil
}

// predict sends one request and validates the predictions.
func (w *worker) predict(ctx context.Context, req workerRequest) ([]inferencePrediction, error) {
	if err := w.acquire(ctx); err != nil {
		return nil, err
	}
	defer w.release()

	if w.closed {
		return nil, ErrWorkerClosed
	}
	if w.proc == nil {
		log.Warn().Str("model", w.name).Int("starts", w.starts).Msg("restarting inference worker")
		if err := w.start(ctx); err != nil {
			return nil, fmt.Errorf("restart inference worker: %w", err)
		}
	}

	w.seq++
	req.ID = w.seq
	resp, err := w.proc.exchange(ctx, req, w.bridge.timeout)
	if err != nil {
		// the caller gave up; the late answer is skipped by the next request
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, err
		}
		log.Error().
			Err(err).
			Str("model", w.name).
			Str("stderr", w.proc.stderrText()).
			Dur("timeout", w.bridge.timeout).
			Msg("Python inference worker failed, stopping it")
		w.proc.stop(0)
		w.proc = nil
		return nil, err
	}
	if resp.Error != "" {
		log.Error().Str("python_error", resp.Error).Str("model", w.name).Msg("Python inference returned error")
		return nil, pythonError(resp.Error)
	}
	if err := validatePredictions(resp.Predictions); err != nil {
		return nil, err
	}

	log.Debug().
		Str("model", w.name).
		Interface("predictions", resp.Predictions).
		Msg("Prediction successful")
	return resp.Predictions, nil
}

// Close stops the interpreter. Later requests fail with ErrWorkerClosed.
func (w *worker) Close() error {
	w.sem <- struct{}{}
	defer w.release()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.proc != nil {
		w.proc.stop(stopGracePeriod)
		w.proc = nil
	}
	return nil
}

func pythonError(msg string) error {
	if strings.Contains(msg, "No module named") {
		return fmt.Errorf("python dependency missing: %s", msg)
	}
	return fmt.Errorf("python inference error: %s", msg)
}

func validatePredictions(predictions []inferencePrediction) error {
	if len(predictions) == 0 {
		return fmt.Errorf("inference returned no predictions")
	}
	for i, p := range predictions {
		if p.Label == "" {
			return fmt.Errorf("prediction %d has an empty label", i)
		}
		if math.IsNaN(p.Confidence) || p.Confidence < 0 || p.Confidence > 1 {
			return fmt.Errorf("invalid confidence %d: %f", i, p.Confidence)
		}
	}
	return nil
}

// process is one running interpreter.
type process struct {
	cmd    *exec.Cmd
	stdin  *os.File
	stdout *os.File
	stderr *os.File

	lines   chan []byte
	done    chan struct{}
	exited  chan struct{}
	drained chan struct{}
	exitErr error

	mu       sync.Mutex
	tail     []string
	stopOnce sync.Once
}

func (b *Bridge) spawn(name string) (*process, error) {
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW)
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW)
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	cmd := exec.Command(b.pythonPath, b.scriptPath)
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	if err := cmd.Start(); err != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW, stderrR, stderrW)
		return nil, fmt.Errorf("start inference process: %w", err)
	}
	// the child holds its own copies
	closeAll(stdinR, stdoutW, stderrW)

	p := &process{
		cmd:     cmd,
		stdin:   stdinW,
		stdout:  stdoutR,
		stderr:  stderrR,
		lines:   make(chan []byte),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
		drained: make(chan struct{}),
	}
	go p.readStdout()
	go p.readStderr(name)
	go func() {
		p.exitErr = cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

func (p *process) readStdout() {
	defer close(p.lines)
	scanner := bufio.NewScanner(p.stdout)
	scanner.Buffer(make([]byte, 64*1024), maxResponseSize)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		select {
		case p.lines <- line:
		case <-p.done:
			return
		}
	}
}

func (p *process) readStderr(name string) {
	defer close(p.drained)
	scanner := bufio.NewScanner(p.stderr)
	scanner.Buffer(make([]byte, 64*1024), maxResponseSize)
	for scanner.Scan() {
		line := scanner.Text()
		log.Debug().Str("model", name).Str("stderr", line).Msg("inference process output")

		p.mu.Lock()
		p.tail = append(p.tail, line)
		if len(p.tail) > stderrTailLines {
			p.tail = p.tail[1:]
		}
		p.mu.Unlock()
	}
	// keep the child from blocking on a full pipe
	_, _ = io.Copy(io.Discard, p.stderr)
}

func (p *process) stderrText() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.Join(p.tail, "\n")
}

// exchange writes req and waits for the matching response. Responses to
// earlier requests, abandoned by a cancelled caller, are skipped.
func (p *process) exchange(ctx context.Context, req workerRequest, timeout time.Duration) (workerResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return workerResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	deadline := time.Now().Add(timeout)
	_ = p.stdin.SetWriteDeadline(deadline)
	if _, err := p.stdin.Write(append(data, '\n')); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return workerResponse{}, fmt.Errorf("%w after %v", ErrInferenceTimeout, timeout)
		}
		return workerResponse{}, fmt.Errorf("write inference request: %w: %v", err, p.exitError())
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	for {
		select {
		case line, ok := <-p.lines:
			if !ok {
				return workerResponse{}, p.exitError()
			}
			var resp workerResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				return workerResponse{}, fmt.Errorf("failed to parse response: %w, stdout: %s", err, line)
			}
			if resp.ID < req.ID {
				log.Debug().Uint64("id", resp.ID).Msg("skipping abandoned inference response")
				continue
			}
			if resp.ID > req.ID {
				return workerResponse{}, fmt.Errorf("unexpected response id %d, want %d", resp.ID, req.ID)
			}
			return resp, nil
		case <-timer.C:
			return workerResponse{}, fmt.Errorf("%w after %v", ErrInferenceTimeout, timeout)
		case <-ctx.Done():
			return workerResponse{}, ctx.Err()
		}
	}
}

// exitError describes a process that closed its stdout.
func (p *process) exitError() error {
	wait, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	select {
	case <-p.exited:
	case <-wait.Done():
	}
	select {
	case <-p.drained:
	case <-wait.Done():
	}

	status := "closed its output"
	select {
	case <-p.exited:
		status = "exited"
		if p.exitErr != nil {
			status = "exited: " + p.exitErr.Error()
		}
	default:
	}

	stderr := p.stderrText()
	if strings.Contains(stderr, "No module named") {
		return fmt.Errorf("python dependency missing: inference process %s, stderr: %s", status, stderr)
	}
	return fmt.Errorf("inference process %s, stderr: %s", status, stderr)
}

// stop closes stdin and gives the process grace to exit before killing it.
func (p *process) stop(grace time.Duration) {
	p.stopOnce.Do(func() {
		close(p.done)
		_ = p.stdin.Close()

		if grace > 0 {
			timer := time.NewTimer(grace)
			select {
			case <-p.exited:
			case <-timer.C:
			}
			timer.Stop()
		}
		select {
		case <-p.exited:
		default:
			_ = p.cmd.Process.Kill()
		}

		_ = p.stdout.Close()
		_ = p.stderr.Close()
	})
}

func findPython() (string, error) {
	var candidates []string

	if venv := os.Getenv("VIRTUAL_ENV"); venv != "" {
		candidates = append(candidates,
			filepath.Join(venv, "bin", "python3"),
			filepath.Join(venv, "bin", "python"),
			filepath.Join(venv, "Scripts", "python.exe"),
		)
	}
	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		for _, root := range []string{execDir, filepath.Dir(execDir)} {
			candidates = append(candidates,
				filepath.Join(root, "venv", "bin", "python3"),
				filepath.Join(root, ".venv", "bin", "python3"),
			)
		}
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil && isPython3(c) {
			log.Info().Str("python_path", c).Msg("Using virtual environment Python")
			return c, nil
		}
	}

	for _, name := range []string{"python3", "python", "python3.12", "python3.11", "python3.10"} {
		path, err := exec.LookPath(name)
		if err == nil && isPython3(path) {
			log.Info().Str("python_path", path).Msg("Using system Python")
			return path, nil
		}
	}

	return "", fmt.Errorf("no suitable Python 3 executable found; set PYTHON_PATH")
}

func isPython3(path string) bool {
	cmd := exec.Command(path, "-c", "import sys; exit(0 if sys.version_info[0] == 3 else 1)")
	return cmd.Run() == nil
}

func createInferenceScript(scriptPath string) error {
	script := `#!/usr/bin/env python3
"""
iSamples inference worker (embedded version).

The first line on stdin loads a model. Every following line is a prediction
request, answered with one JSON line on stdout carrying the request id.
"""
import json
import sys


def load_bert(request):
    import torch
    from transformers import BertTokenizer, BertForSequenceClassification

    config = request["config"]
    class_names = config["CLASS_NAMES"]
    tokenizer = BertTokenizer.from_pretrained(config["BERT_MODEL"])
    classifier = BertForSequenceClassification.from_pretrained(
        config["FINE_TUNED_MODEL"], num_labels=len(class_names)
    ).eval()
    k = min(int(request.get("top_k", 3)), len(class_names))

    def predict(req):
        encoded = tokenizer.encode_plus(
            req.get("text", ""),
            max_length=config["MAX_SEQUENCE_LEN"],
            add_special_tokens=True,
            padding="max_length",
            truncation=True,
            return_tensors="pt",
        )
        with torch.no_grad():
            logits = classifier(encoded["input_ids"], encoded["attention_mask"])[0]
        prob = logits.softmax(dim=-1)[0]
        top_probs, indices = torch.topk(prob, k)
        return [
            {"label": class_names[i.item()], "confidence": float(p.item())}
            for p, i in zip(top_probs, indices)
        ]

    return predict


def load_fasttext(request):
    import fasttext

    model = fasttext.load_model(request["model_path"])
    k = int(request.get("top_k", 1))

    def predict(req):
        text = " ".join(req.get("inputs") or [])
        labels, probs = model.predict(text, k=k)
        return [
            {"label": label, "confidence": min(float(prob), 1.0)}
            for label, prob in zip(labels, probs)
        ]

    return predict


LOADERS = {"bert": load_bert, "fasttext": load_fasttext}


def main():
    out = sys.stdout
    # stdout carries responses only; library chatter goes to stderr
    sys.stdout = sys.stderr

    def reply(message):
        out.write(json.dumps(message) + "\n")
        out.flush()

    line = sys.stdin.readline()
    if not line:
        return
    load = json.loads(line)
    try:
        loader = LOADERS.get(load.get("kind"))
        if loader is None:
            raise ValueError("unknown model kind: %r" % load.get("kind"))
        predict = loader(load)
    except Exception as e:
        reply({"id": load.get("id"), "error": str(e)})
        sys.exit(1)
    reply({"id": load.get("id"), "ready": True})

    while True:
        line = sys.stdin.readline()
        if not line:
            break
        if not line.strip():
            continue
        request = json.loads(line)
        try:
            reply({"id": request.get("id"), "predictions": predict(request)})
        except Exception as e:
            reply({"id": request.get("id"), "error": str(e)})


if __name__ == "__main__":
    main()
`

	return os.WriteFile(scriptPath, []byte(script), 0o755)
}

func isTimeout(err error) bool {
	return errors.Is(err, ErrInferenceTimeout)
}
