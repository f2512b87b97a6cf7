package translator

import (
	"github.com/Laisky/errors/v2"

	rmodel "github.com/relaygate/relaygate/relay/model"
)

// ResponseFSM drives one EventSink from a sequence of parser events,
// implementing the Init -> MessageStarted -> (BlockStarted <-> BlockDelta)* ->
// BlockStopped -> ... -> MessageStopped machine (spec §4.7).
type ResponseFSM struct {
	sink EventSink

	modelID        string
	started        bool
	nextIndex      int
	openTextIndex  int // -1 when no text block is open
	openToolIndex  map[string]int
	seenToolIds    map[string]bool
	stopped        bool

	emittedText      string
	completedToolIn  []string
	currentToolInput map[int]string

	inputTokens int
}

func NewResponseFSM(sink EventSink, modelID string, inputTokens int) *ResponseFSM {
	return &ResponseFSM{
		sink:             sink,
		modelID:          modelID,
		openTextIndex:    -1,
		openToolIndex:    make(map[string]int),
		seenToolIds:      make(map[string]bool),
		currentToolInput: make(map[int]string),
		inputTokens:      inputTokens,
	}
}

// Consume processes one parser event, emitting zero or more public SSE
// frames via the sink.
func (f *ResponseFSM) Consume(ev rmodel.ParserEvent) error {
	if !f.started {
		if err := f.sink.EmitMessageStart(f.modelID); err != nil {
			return errors.Wrap(err, "emit message start")
		}
		f.started = true
	}

	switch ev.Kind {
	case rmodel.EventTextDelta:
		return f.onTextDelta(ev.Text)
	case rmodel.EventToolUseFragment:
		return f.onToolFragment(ev)
	case rmodel.EventAssistantEnd:
		return f.onAssistantEnd(ev.ToolUses)
	case rmodel.EventDone:
		return f.finish("end_turn")
	default:
		return nil
	}
}

func (f *ResponseFSM) onTextDelta(text string) error {
	if text == "" {
		return nil
	}
	if f.openTextIndex == -1 {
		f.openTextIndex = f.nextIndex
		f.nextIndex++
		if err := f.sink.EmitBlockStart(f.openTextIndex, rmodel.ContentBlock{Type: rmodel.BlockText}); err != nil {
			return errors.Wrap(err, "emit text block start")
		}
	}
	f.emittedText += text
	return f.sink.EmitTextDelta(f.openTextIndex, text)
}

func (f *ResponseFSM) closeTextBlockIfOpen() error {
	if f.openTextIndex == -1 {
		return nil
	}
	idx := f.openTextIndex
	f.openTextIndex = -1
	return f.sink.EmitBlockStop(idx)
}

func (f *ResponseFSM) onToolFragment(ev rmodel.ParserEvent) error {
	// Text and tool-use blocks never interleave inside one index: opening a
	// tool-use while text is open closes the text block first (spec §4.7).
	if err := f.closeTextBlockIfOpen(); err != nil {
		return errors.Wrap(err, "close text block before tool use")
	}

	index, open := f.openToolIndex[ev.ToolUseId]
	if !open {
		if f.seenToolIds[ev.ToolUseId] && ev.InputFragment == "" {
			return nil
		}
		index = f.nextIndex
		f.nextIndex++
		f.openToolIndex[ev.ToolUseId] = index
		f.seenToolIds[ev.ToolUseId] = true
		if err := f.sink.EmitBlockStart(index, rmodel.ContentBlock{
			Type: rmodel.BlockToolUse, ToolUseId: ev.ToolUseId, ToolName: ev.ToolName,
		}); err != nil {
			return errors.Wrap(err, "emit tool use block start")
		}
	}

	if ev.InputFragment != "" {
		f.currentToolInput[index] += ev.InputFragment
		if err := f.sink.EmitToolInputDelta(index, ev.InputFragment); err != nil {
			return errors.Wrap(err, "emit tool input delta")
		}
	}

	if ev.Stop {
		delete(f.openToolIndex, ev.ToolUseId)
		f.completedToolIn = append(f.completedToolIn, f.currentToolInput[index])
		if err := f.sink.EmitBlockStop(index); err != nil {
			return errors.Wrap(err, "emit tool use block stop")
		}
	}
	return nil
}

func (f *ResponseFSM) onAssistantEnd(toolUses []rmodel.ToolUse) error {
	for _, tu := range toolUses {
		if f.seenToolIds[tu.ToolUseId] {
			continue
		}
		if err := f.onToolFragment(rmodel.ParserEvent{
			ToolUseId: tu.ToolUseId, ToolName: tu.Name, InputFragment: "", Stop: false,
		}); err != nil {
			return err
		}
	}
	return f.finish("end_turn")
}

// Finish closes any still-open block and emits the terminal frames. Safe to
// call more than once; calls after the first are no-ops.
func (f *ResponseFSM) Finish(stopReason string) error {
	return f.finish(stopReason)
}

func (f *ResponseFSM) finish(stopReason string) error {
	if f.stopped {
		return nil
	}
	f.stopped = true

	if err := f.closeTextBlockIfOpen(); err != nil {
		return err
	}
	for toolId, index := range f.openToolIndex {
		delete(f.openToolIndex, toolId)
		f.completedToolIn = append(f.completedToolIn, f.currentToolInput[index])
		if err := f.sink.EmitBlockStop(index); err != nil {
			return err
		}
	}

	outputTokens := EstimateOutputTokens(f.emittedText, f.completedToolIn)
	return f.sink.EmitMessageStop(rmodel.Usage{
		InputTokens:  f.inputTokens,
		OutputTokens: outputTokens,
	}, stopReason)
}

// Abort reports a mid-stream failure via the sink's error frame, per spec
// §9 "inject a synthetic error-named SSE frame and close cleanly".
func (f *ResponseFSM) Abort(message string) error {
	return f.sink.EmitError(message)
}
