// Package decoder implements the tool-use streaming decoder: an
// incremental, line-oriented parser that turns a stream of LLM character
// deltas into thinking deltas, a tool identification event, per-parameter
// deltas, and finally one ToolInputPartial or a NoToolFound.
//
// It is deliberately synchronous over a buffer, mirroring the line-walking
// state machine of its original (Rust) implementation: the goroutine that
// reads the LLM delta stream calls Feed, which returns the Events decoded
// from the lines completed so far, so cancellation drops cleanly without
// losing already-decoded bytes.
package decoder

import (
	"strings"

	"github.com/coderunner-dev/agentcore/pkg/types"
)

type state int

const (
	stateNoBlock state = iota
	stateThinking
	stateToolUseFind
	stateToolFound
	stateInParam
	stateDone
)

type paramKind int

const (
	paramSingleLine paramKind = iota
	paramMultiLine
	paramList
)

type paramSpec struct {
	kind     paramKind
	required bool
}

type toolSpec struct {
	kind   types.ToolKind
	params map[string]paramSpec
}

// toolTags maps an opening tag name to its tool spec, per the resolution
// table: required params, and every optional one it accepts.
var toolTags = map[string]toolSpec{
	"search_files": {types.ToolSearchFiles, map[string]paramSpec{
		"directory_path": {paramSingleLine, true},
		"regex_pattern":  {paramMultiLine, true},
		"file_pattern":   {paramSingleLine, false},
	}},
	"code_edit_input": {types.ToolCodeEditing, map[string]paramSpec{
		"fs_file_path": {paramSingleLine, true},
		"instruction":  {paramMultiLine, true},
	}},
	"list_files": {types.ToolListFiles, map[string]paramSpec{
		"directory_path": {paramSingleLine, true},
		"recursive":      {paramSingleLine, true},
	}},
	"read_file": {types.ToolReadFile, map[string]paramSpec{
		"fs_file_path": {paramSingleLine, true},
	}},
	"get_diagnostics": {types.ToolDiagnostics, map[string]paramSpec{}},
	"execute_command": {types.ToolTerminalCommand, map[string]paramSpec{
		"command": {paramMultiLine, true},
	}},
	"attempt_completion": {types.ToolAttemptCompletion, map[string]paramSpec{
		"result":  {paramMultiLine, true},
		"command": {paramMultiLine, false},
	}},
	"ask_followup_question": {types.ToolAskFollowupQuestion, map[string]paramSpec{
		"question": {paramMultiLine, true},
	}},
	"repo_map_generation": {types.ToolRepoMapGeneration, map[string]paramSpec{
		"directory_path": {paramSingleLine, true},
	}},
	"test_runner": {types.ToolTestRunner, map[string]paramSpec{
		"fs_file_paths": {paramList, true},
	}},
}

type paramAccum struct {
	cumulative string
	list       []string
	touched    bool
}

// EventKind closes the set of events the decoder emits.
type EventKind int

const (
	EventThinkingDelta EventKind = iota
	EventToolFound
	EventParameterDelta
	EventToolReady
	EventNoToolFound
)

type Event struct {
	Kind EventKind

	ThinkingCumulative string

	ToolKind types.ToolKind

	FieldName       string
	FieldCumulative string
	FieldDelta      string

	ToolInput *types.ToolInputPartial

	FullOutput string
}

// Decoder is not safe for concurrent use; feed it from a single goroutine
// reading the LLM delta stream.
type Decoder struct {
	buf           strings.Builder
	processedUpTo int
	st            state

	thinkingCumulative string

	currentTag    string
	currentSpec   toolSpec
	params        map[string]*paramAccum
	currentParam  string
}

func New() *Decoder {
	return &Decoder{st: stateNoBlock}
}

// Feed appends a chunk of the stream and returns the events produced by any
// newly completed lines. It never panics and never drops bytes: an
// incomplete trailing line stays buffered until the next Feed or Flush.
func (d *Decoder) Feed(chunk string) []Event {
	d.buf.WriteString(chunk)
	return d.drainCompleteLines()
}

// Flush forces processing of a trailing partial line (by appending a
// sentinel newline) and, if no tool was ever resolved, emits NoToolFound
// with the full buffered output.
func (d *Decoder) Flush() []Event {
	var events []Event
	full := d.buf.String()
	if len(full) == 0 || full[len(full)-1] != '\n' {
		events = append(events, d.Feed("\n")...)
	}
	if d.st != stateDone {
		events = append(events, Event{Kind: EventNoToolFound, FullOutput: d.buf.String()})
		d.st = stateDone
	}
	return events
}

func (d *Decoder) drainCompleteLines() []Event {
	var events []Event
	full := d.buf.String()
	for {
		if d.st == stateDone {
			break
		}
		idx := strings.IndexByte(full[d.processedUpTo:], '\n')
		if idx < 0 {
			break
		}
		lineEnd := d.processedUpTo + idx
		line := full[d.processedUpTo:lineEnd]
		d.processedUpTo = lineEnd + 1
		events = append(events, d.processLine(line)...)
	}
	return events
}

func tagName(line string) (string, bool, bool) {
	t := strings.TrimSpace(line)
	if len(t) < 3 || t[0] != '<' || t[len(t)-1] != '>' {
		return "", false, false
	}
	closing := false
	inner := t[1 : len(t)-1]
	if strings.HasPrefix(inner, "/") {
		closing = true
		inner = inner[1:]
	}
	if inner == "" {
		return "", false, false
	}
	return inner, closing, true
}

func (d *Decoder) processLine(line string) []Event {
	switch d.st {
	case stateNoBlock:
		if name, closing, ok := tagName(line); ok && !closing && name == "thinking" {
			d.thinkingCumulative = ""
			d.st = stateThinking
		}
		return nil

	case stateThinking:
		if name, closing, ok := tagName(line); ok && closing && name == "thinking" {
			d.st = stateToolUseFind
			return nil
		}
		if d.thinkingCumulative == "" {
			d.thinkingCumulative = line
		} else {
			d.thinkingCumulative += "\n" + line
		}
		return []Event{{Kind: EventThinkingDelta, ThinkingCumulative: d.thinkingCumulative}}

	case stateToolUseFind:
		if name, closing, ok := tagName(line); ok && !closing {
			if spec, known := toolTags[name]; known {
				d.currentTag = name
				d.currentSpec = spec
				d.params = make(map[string]*paramAccum)
				d.st = stateToolFound
				return []Event{{Kind: EventToolFound, ToolKind: spec.kind}}
			}
		}
		return nil

	case stateToolFound:
		name, closing, ok := tagName(line)
		if !ok {
			return nil
		}
		if closing && name == d.currentTag {
			return d.finishTool()
		}
		if !closing {
			if _, known := d.currentSpec.params[name]; known {
				d.currentParam = name
				if d.params[name] == nil {
					d.params[name] = &paramAccum{}
				}
				d.st = stateInParam
			}
		}
		return nil

	case stateInParam:
		if name, closing, ok := tagName(line); ok && closing && name == d.currentParam {
			d.st = stateToolFound
			d.currentParam = ""
			return nil
		}
		return d.appendParamLine(line)
	}
	return nil
}

func (d *Decoder) appendParamLine(line string) []Event {
	spec := d.currentSpec.params[d.currentParam]
	acc := d.params[d.currentParam]
	acc.touched = true
	switch spec.kind {
	case paramSingleLine:
		acc.cumulative = line
		return []Event{{Kind: EventParameterDelta, FieldName: d.currentParam, FieldCumulative: acc.cumulative, FieldDelta: line}}
	case paramMultiLine:
		if acc.cumulative == "" {
			acc.cumulative = line
		} else {
			acc.cumulative += "\n" + line
		}
		return []Event{{Kind: EventParameterDelta, FieldName: d.currentParam, FieldCumulative: acc.cumulative, FieldDelta: line}}
	case paramList:
		acc.list = append(acc.list, line)
		acc.cumulative = strings.Join(acc.list, "\n")
		return []Event{{Kind: EventParameterDelta, FieldName: d.currentParam, FieldCumulative: acc.cumulative, FieldDelta: line}}
	}
	return nil
}

func (d *Decoder) finishTool() []Event {
	for name, spec := range d.currentSpec.params {
		if spec.required {
			acc := d.params[name]
			if acc == nil || !acc.touched {
				d.st = stateDone
				return []Event{{Kind: EventNoToolFound, FullOutput: d.buf.String()}}
			}
		}
	}
	input := d.buildToolInput()
	d.st = stateDone
	return []Event{{Kind: EventToolReady, ToolInput: input}}
}

func (d *Decoder) buildToolInput() *types.ToolInputPartial {
	get := func(name string) string {
		if acc := d.params[name]; acc != nil {
			return acc.cumulative
		}
		return ""
	}
	getList := func(name string) []string {
		if acc := d.params[name]; acc != nil {
			return acc.list
		}
		return nil
	}

	switch d.currentSpec.kind {
	case types.ToolSearchFiles:
		return &types.ToolInputPartial{Kind: d.currentSpec.kind, SearchFiles: &types.SearchFilesInput{
			DirectoryPath: get("directory_path"), RegexPattern: get("regex_pattern"), FilePattern: get("file_pattern"),
		}}
	case types.ToolCodeEditing:
		return &types.ToolInputPartial{Kind: d.currentSpec.kind, CodeEditing: &types.CodeEditingInput{
			FsFilePath: get("fs_file_path"), Instruction: get("instruction"),
		}}
	case types.ToolListFiles:
		return &types.ToolInputPartial{Kind: d.currentSpec.kind, ListFiles: &types.ListFilesInput{
			DirectoryPath: get("directory_path"), Recursive: get("recursive") == "true",
		}}
	case types.ToolReadFile:
		return &types.ToolInputPartial{Kind: d.currentSpec.kind, ReadFile: &types.ReadFileInput{
			FsFilePath: get("fs_file_path"),
		}}
	case types.ToolDiagnostics:
		return &types.ToolInputPartial{Kind: d.currentSpec.kind, Diagnostics: &types.DiagnosticsInput{}}
	case types.ToolTerminalCommand:
		return &types.ToolInputPartial{Kind: d.currentSpec.kind, TerminalCommand: &types.TerminalCommandInput{
			Command: get("command"),
		}}
	case types.ToolAttemptCompletion:
		return &types.ToolInputPartial{Kind: d.currentSpec.kind, AttemptCompletion: &types.AttemptCompletionInput{
			Result: get("result"), Command: get("command"),
		}}
	case types.ToolAskFollowupQuestion:
		return &types.ToolInputPartial{Kind: d.currentSpec.kind, AskFollowupQuestion: &types.AskFollowupQuestionInput{
			Question: get("question"),
		}}
	case types.ToolRepoMapGeneration:
		return &types.ToolInputPartial{Kind: d.currentSpec.kind, RepoMapGeneration: &types.RepoMapGenerationInput{
			DirectoryPath: get("directory_path"),
		}}
	case types.ToolTestRunner:
		return &types.ToolInputPartial{Kind: d.currentSpec.kind, TestRunner: &types.TestRunnerInput{
			FsFilePaths: getList("fs_file_paths"),
		}}
	}
	return nil
}

// Done reports whether the decoder has resolved a tool (or NoToolFound) and
// will ignore any further input, per "the first well-formed tool block in
// the stream wins; any trailing output is ignored".
func (d *Decoder) Done() bool { return d.st == stateDone }
