// Package wire implements the debugger's binary framing.
//
// Every message starts with a 4-byte ASCII tag followed by tag specific fields.
// Integers are 4-byte big-endian signed values. Strings carry a one byte
// encoding prefix and, unless null, a 4-byte byte length:
//
//	N                  null string
//	U <len> <bytes>    UTF-8
//	A <len> <bytes>    ASCII
//	W <len> <bytes>    UTF-16LE
//
// Tags sent by the engine are upper case; tags sent by the controller are
// lower case.
package wire

// Tag identifies a message.
type Tag [4]byte

// String returns the tag text.
func (t Tag) String() string {
	return string(t[:])
}

// MakeTag builds a tag from a 4 character string.
func MakeTag(s string) Tag {
	var t Tag
	copy(t[:], s)
	return t
}

// Engine to controller.
var (
	TagNewThread       = MakeTag("NEWT")
	TagThreadExit      = MakeTag("EXTT")
	TagModuleLoad      = MakeTag("MODL")
	TagStepDone        = MakeTag("STPD")
	TagBreakpointBound = MakeTag("BRKS")
	TagBreakpointFail  = MakeTag("BRKF")
	TagBreakpointHit   = MakeTag("BRKH")
	TagProcessLoaded   = MakeTag("LOAD")
	TagException       = MakeTag("EXCP")
	TagThreadFrames    = MakeTag("THRF")
	TagEvalResult      = MakeTag("EXCR")
	TagEvalError       = MakeTag("EXCE")
	TagChildren        = MakeTag("CHLD")
	TagOutput          = MakeTag("OUTP")
	TagHitCountReply   = MakeTag("BKHC")
	TagAsyncBreak      = MakeTag("ASBR")
	TagSetLineResult   = MakeTag("SETL")
	TagRequestHandlers = MakeTag("REQH")
	TagProcessExit     = MakeTag("EXIT")
	TagDetachAck       = MakeTag("DETC")
	TagLast            = MakeTag("LAST")
)

// Controller to engine.
var (
	CmdStepInto            = MakeTag("stpi")
	CmdStepOut             = MakeTag("stpo")
	CmdStepOver            = MakeTag("stpv")
	CmdSetBreakpoint       = MakeTag("brkp")
	CmdSetCondition        = MakeTag("brkc")
	CmdSetPassCount        = MakeTag("bkpc")
	CmdSetHitCount         = MakeTag("bksh")
	CmdGetHitCount         = MakeTag("bkhc")
	CmdRemoveBreakpoint    = MakeTag("brkr")
	CmdBreakAll            = MakeTag("brka")
	CmdResumeAll           = MakeTag("resa")
	CmdResumeThread        = MakeTag("rest")
	CmdAutoResume          = MakeTag("ares")
	CmdExecute             = MakeTag("exec")
	CmdEnumChildren        = MakeTag("chld")
	CmdSetLineNumber       = MakeTag("setl")
	CmdDetach              = MakeTag("detc")
	CmdClearStepping       = MakeTag("clst")
	CmdSetExceptionInfo    = MakeTag("sexi")
	CmdSetExceptionHandler = MakeTag("sehi")
	CmdAddMappedBreak      = MakeTag("bkda")
	CmdRemoveMappedBreak   = MakeTag("bkdr")
	CmdConnectSecondary    = MakeTag("crep")
	CmdDisconnectSecondary = MakeTag("drep")
	CmdLastAck             = MakeTag("last")
)

// String encoding prefixes.
const (
	PrefixNull  byte = 'N'
	PrefixUTF8  byte = 'U'
	PrefixASCII byte = 'A'
	PrefixUTF16 byte = 'W'
)

// MaxStringLength bounds a single string payload.
const MaxStringLength = 16 * 1024 * 1024

// ProtocolVersion is sent after the session id during the attach handshake.
const ProtocolVersion = 1
