// Package transport carries frames pushed by managed runtimes into the
// engine. A Frame names its sender, a function, and string operands; the
// Dispatcher queues frames on an unbounded backlog so producers never
// block, and a single goroutine hands them to the engine in push order.
package transport

// Function selects the operation a frame asks the host to perform.
type Function string

// Wire values emitted by the scripting runtimes, matched verbatim.
const (
	FuncHeartBeat       Function = "heartBeat"
	FuncUpdateStatus    Function = "updateStatus"
	FuncUpdateRuns      Function = "updateRuns"
	FuncUpdateChickens  Function = "updateChickens"
	FuncUpdateDeaths    Function = "updateDeaths"
	FuncPrintToConsole  Function = "printToConsole"
	FuncPrintToItemLog  Function = "printToItemLog"
	FuncGetProfile      Function = "getProfile"
	FuncRequestGameInfo Function = "requestGameInfo"
	FuncSetProfile      Function = "setProfile"
	FuncRestartProfile  Function = "restartProfile"
	FuncStop            Function = "stop"
	FuncStart           Function = "start"
	FuncKeyInUse        Function = "CDKeyInUse"
	FuncKeyDisabled     Function = "CDKeyDisabled"
	FuncKeyRD           Function = "CDKeyRD"
	FuncStore           Function = "store"
	FuncRetrieve        Function = "retrieve"
	FuncDelete          Function = "delete"
	FuncShoutGlobal     Function = "shoutGlobal"
	FuncStopSchedule    Function = "stopSchedule"
	FuncStartSchedule   Function = "startSchedule"
	FuncWinMsg          Function = "winmsg"
)

var knownFunctions = map[Function]struct{}{
	FuncHeartBeat:       {},
	FuncUpdateStatus:    {},
	FuncUpdateRuns:      {},
	FuncUpdateChickens:  {},
	FuncUpdateDeaths:    {},
	FuncPrintToConsole:  {},
	FuncPrintToItemLog:  {},
	FuncGetProfile:      {},
	FuncRequestGameInfo: {},
	FuncSetProfile:      {},
	FuncRestartProfile:  {},
	FuncStop:            {},
	FuncStart:           {},
	FuncKeyInUse:        {},
	FuncKeyDisabled:     {},
	FuncKeyRD:           {},
	FuncStore:           {},
	FuncRetrieve:        {},
	FuncDelete:          {},
	FuncShoutGlobal:     {},
	FuncStopSchedule:    {},
	FuncStartSchedule:   {},
	FuncWinMsg:          {},
}

// Known reports whether the function is part of the dispatch contract.
// Unknown functions still flow through the dispatcher; the consumer
// decides what to do with them.
func (f Function) Known() bool {
	_, ok := knownFunctions[f]
	return ok
}

// String returns the wire value.
func (f Function) String() string {
	return string(f)
}

// Frame is one message from a managed runtime. SenderToken is the reply
// token the runtime was handed at launch and resolves back to a profile;
// Args carry the operands for Function, encoded as strings.
type Frame struct {
	SenderToken string   `json:"sender"`
	Function    Function `json:"function"`
	Args        []string `json:"args,omitempty"`
}

// NewFrame builds a frame from a sender token, function, and operands.
func NewFrame(sender string, fn Function, args ...string) Frame {
	return Frame{SenderToken: sender, Function: fn, Args: args}
}

// Arg returns the i-th operand, or "" when the frame carries fewer.
func (f Frame) Arg(i int) string {
	if i < 0 || i >= len(f.Args) {
		return ""
	}
	return f.Args[i]
}
