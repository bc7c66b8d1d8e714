package types

// ToolKind closes the set of tool kinds the decoder can resolve, per the
// tool resolution table: tag -> required params -> result.
type ToolKind string

const (
	ToolSearchFiles          ToolKind = "search_files"
	ToolReadFile             ToolKind = "read_file"
	ToolCodeEditing          ToolKind = "code_editing"
	ToolListFiles            ToolKind = "list_files"
	ToolDiagnostics          ToolKind = "diagnostics"
	ToolTerminalCommand      ToolKind = "terminal_command"
	ToolAttemptCompletion    ToolKind = "attempt_completion"
	ToolAskFollowupQuestion  ToolKind = "ask_followup_question"
	ToolRepoMapGeneration    ToolKind = "repo_map_generation"
	ToolTestRunner           ToolKind = "test_runner"
)

// ToolInputPartial is the tagged union with one constructor per tool kind.
// Only the field matching Kind is populated; ToolType reports Kind back.
type ToolInputPartial struct {
	Kind ToolKind `json:"kind"`

	SearchFiles         *SearchFilesInput         `json:"searchFiles,omitempty"`
	ReadFile            *ReadFileInput            `json:"readFile,omitempty"`
	CodeEditing         *CodeEditingInput         `json:"codeEditing,omitempty"`
	ListFiles           *ListFilesInput           `json:"listFiles,omitempty"`
	Diagnostics         *DiagnosticsInput         `json:"diagnostics,omitempty"`
	TerminalCommand     *TerminalCommandInput     `json:"terminalCommand,omitempty"`
	AttemptCompletion   *AttemptCompletionInput   `json:"attemptCompletion,omitempty"`
	AskFollowupQuestion *AskFollowupQuestionInput `json:"askFollowupQuestion,omitempty"`
	RepoMapGeneration   *RepoMapGenerationInput   `json:"repoMapGeneration,omitempty"`
	TestRunner          *TestRunnerInput          `json:"testRunner,omitempty"`
}

func (t *ToolInputPartial) ToolType() ToolKind { return t.Kind }

type SearchFilesInput struct {
	DirectoryPath string `json:"directoryPath"`
	RegexPattern  string `json:"regexPattern"`
	FilePattern   string `json:"filePattern,omitempty"`
}

type ReadFileInput struct {
	FsFilePath string `json:"fsFilePath"`
}

type CodeEditingInput struct {
	FsFilePath  string `json:"fsFilePath"`
	Instruction string `json:"instruction"`
}

type ListFilesInput struct {
	DirectoryPath string `json:"directoryPath"`
	Recursive     bool   `json:"recursive"`
}

type DiagnosticsInput struct{}

type TerminalCommandInput struct {
	Command string `json:"command"`
}

type AttemptCompletionInput struct {
	Result  string `json:"result"`
	Command string `json:"command,omitempty"`
}

type AskFollowupQuestionInput struct {
	Question string `json:"question"`
}

type RepoMapGenerationInput struct {
	DirectoryPath string `json:"directoryPath"`
}

type TestRunnerInput struct {
	FsFilePaths []string `json:"fsFilePaths"`
}
