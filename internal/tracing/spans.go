package tracing

// Span attribute keys for engine tracing.
// These constants define the semantic conventions for span attributes
// across the supervision and scheduling paths.
const (
	// Profile attributes
	AttrProfileName  = "profile.name"
	AttrProfileState = "profile.state"
	AttrProfileGroup = "profile.group"

	// Credential attributes
	AttrKeyPool = "key.pool"
	AttrKeyName = "key.name"

	// Supervision attributes
	AttrCrashCount = "crash.count"
	AttrExitCode   = "exit.code"
	AttrPid        = "process.pid"
	AttrStopForce  = "stop.force"
	AttrStopReason = "stop.reason"

	// Schedule attributes
	AttrScheduleName = "schedule.name"
	AttrInWindow     = "schedule.in_window"

	// Transport attributes
	AttrFrameFunction = "frame.function"
	AttrReplyToken    = "frame.token"

	// Error attributes
	AttrErrorMessage = "error.message"
)

// Span names for engine operations.
const (
	SpanEngineStart    = "engine.start"
	SpanEngineStop     = "engine.stop"
	SpanEngineStartAll = "engine.start_all"
	SpanEngineStopAll  = "engine.stop_all"
	SpanRotateKey      = "engine.rotate_key"

	SpanSupervisePreflight = "supervise.preflight"
	SpanSuperviseLaunch    = "supervise.launch"
	SpanSuperviseMonitor   = "supervise.monitor"
	SpanSuperviseRecover   = "supervise.recover"
	SpanSuperviseStop      = "supervise.stop"

	SpanScheduleTick = "schedule.tick"
)
