package chatclient

import (
	"context"
	"errors"
	"sync"
)

// DictationState is the state of a speech session.
type DictationState int

const (
	DictationIdle DictationState = iota
	DictationListening
	DictationError
)

func (s DictationState) String() string {
	switch s {
	case DictationListening:
		return "listening"
	case DictationError:
		return "error"
	default:
		return "idle"
	}
}

var ErrAlreadyListening = errors.New("dictation already listening")

// Recognizer is a platform speech recognition session. Listen blocks until
// a final transcript is recognized, the platform stops on silence (empty
// transcript, nil error), ctx is cancelled, or it fails.
type Recognizer interface {
	Listen(ctx context.Context) (transcript string, err error)
}

// Dictation lets the user dictate the chat draft. A final transcript
// replaces the draft; interim results are not kept.
type Dictation struct {
	recognizer Recognizer
	onFinal    func(transcript string)

	mu     sync.Mutex
	state  DictationState
	err    error
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDictation calls onFinal with each recognized transcript.
func NewDictation(recognizer Recognizer, onFinal func(transcript string)) *Dictation {
	return &Dictation{
		recognizer: recognizer,
		onFinal:    onFinal,
	}
}

// ForChat wires a dictation session to a chat draft.
func ForChat(recognizer Recognizer, chat *Chat) *Dictation {
	return NewDictation(recognizer, chat.SetDraft)
}

func (d *Dictation) State() DictationState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Err is the failure that put the session in DictationError.
func (d *Dictation) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Start begins listening in the background.
func (d *Dictation) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == DictationListening {
		return ErrAlreadyListening
	}

	ctx, cancel := context.WithCancel(ctx)
	d.state = DictationListening
	d.err = nil
	d.cancel = cancel
	d.done = make(chan struct{})

	go d.listen(ctx, cancel, d.done)
	return nil
}

func (d *Dictation) listen(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	transcript, err := d.recognizer.Listen(ctx)
	cancel()

	d.mu.Lock()
	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		d.state = DictationError
		d.err = err
	default:
		d.state = DictationIdle
	}
	d.cancel = nil
	d.mu.Unlock()

	if err == nil && transcript != "" && d.onFinal != nil {
		d.onFinal(transcript)
	}
}

// Stop ends a running session and waits for it to return to idle.
func (d *Dictation) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Toggle starts a stopped session or stops a running one.
func (d *Dictation) Toggle(ctx context.Context) error {
	if d.State() == DictationListening {
		d.Stop()
		return nil
	}
	return d.Start(ctx)
}

// Wait blocks until the current session ends.
func (d *Dictation) Wait() {
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()
	if done != nil {
		<-done
	}
}
