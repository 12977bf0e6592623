package bridge

// Size and SSize replace size_t and ssize_t with types of known width for
// transmission across the enclave boundary.
type (
	Size  uint64
	SSize int64
)

// TimerType selects the timer for getitimer/setitimer inside an enclave.
type TimerType int32

const (
	ITimerUnknown TimerType = iota
	ITimerReal
	ITimerVirtual
	ITimerProf
)

// RUsageTarget selects the getrusage(2) target supported inside the enclave.
type RUsageTarget int32

const (
	RUsageUnknown RUsageTarget = iota
	RUsageSelf
	RUsageChildren
)

// Wait options supported inside the enclave.
const (
	WNoHang = 1
)

// WStatus encodes a wait status word. The code byte is 0 for a normal exit
// and StoppedCode for a stopped child; any other value means the child was
// signaled.
type WStatus struct {
	Code uint8
	Info uint8
}

// StoppedCode is the code byte reported for a stopped child.
const StoppedCode = 0x7f

// Exited reports whether the child terminated normally.
func (ws WStatus) Exited() bool { return ws.Code == 0 }

// Stopped reports whether the child is currently stopped.
func (ws WStatus) Stopped() bool { return ws.Code == StoppedCode }

// Signaled reports whether the child was terminated by a signal.
func (ws WStatus) Signaled() bool { return !ws.Exited() && !ws.Stopped() }

// ExitStatus returns the exit status of a normally terminated child.
func (ws WStatus) ExitStatus() int { return int(ws.Info) }

// SigMaskAction enumerates the sigprocmask actions.
type SigMaskAction int32

const (
	SigSetMask SigMaskAction = iota
	SigBlock
	SigUnblock
)

// Signal is an enclave-neutral signal number. All registrable signals are
// covered except SIGSTOP and SIGKILL, which cannot be handled.
type Signal int32

const (
	SIGHUP    Signal = 1
	SIGINT    Signal = 2
	SIGQUIT   Signal = 3
	SIGILL    Signal = 4
	SIGTRAP   Signal = 5
	SIGABRT   Signal = 6
	SIGBUS    Signal = 7
	SIGFPE    Signal = 8
	SIGKILL   Signal = 9
	SIGUSR1   Signal = 10
	SIGSEGV   Signal = 11
	SIGUSR2   Signal = 12
	SIGPIPE   Signal = 13
	SIGALRM   Signal = 14
	SIGTERM   Signal = 15
	SIGCHLD   Signal = 16
	SIGCONT   Signal = 17
	SIGSTOP   Signal = 18
	SIGTSTP   Signal = 19
	SIGTTIN   Signal = 20
	SIGTTOU   Signal = 21
	SIGURG    Signal = 22
	SIGXCPU   Signal = 23
	SIGXFSZ   Signal = 24
	SIGVTALRM Signal = 25
	SIGPROF   Signal = 26
	SIGWINCH  Signal = 27
	SIGSYS    Signal = 28
	SIGRTMIN  Signal = 32
	SIGRTMAX  Signal = 64
)

// SignalCode describes the cause of a signal.
type SignalCode int32

const (
	SIUser SignalCode = iota + 1
	SIQueue
	SITimer
	SIAsyncIO
	SIMesgQ
)

// Signal behavior flags.
const (
	SANoDefer   = 0x01
	SAResetHand = 0x02
)

// SigSet is a fixed-width signal set covering signals 1 through 64.
type SigSet uint64

// Add inserts sig into the set.
func (s *SigSet) Add(sig Signal) {
	if sig >= 1 && sig <= 64 {
		*s |= 1 << (uint(sig) - 1)
	}
}

// Remove deletes sig from the set.
func (s *SigSet) Remove(sig Signal) {
	if sig >= 1 && sig <= 64 {
		*s &^= 1 << (uint(sig) - 1)
	}
}

// Contains reports whether sig is in the set.
func (s SigSet) Contains(sig Signal) bool {
	if sig < 1 || sig > 64 {
		return false
	}
	return s&(1<<(uint(sig)-1)) != 0
}

// SigInfo is the fixed-width subset of siginfo_t crossing the boundary.
type SigInfo struct {
	Signo int32
	Code  int32
}

// SocketType enumerates socket(2) type values. The nonblock/cloexec flags
// may be bitwise-ORed with any base type.
type SocketType int32

const (
	SockUnsupported SocketType = iota
	SockStream
	SockDgram
	SockSeqPacket
	SockRaw
	SockRDM
	SockPacket
)

const (
	SockNonblock  SocketType = 0x0100
	SockCloexec   SocketType = 0x0200
	SockTypeFlags            = SockNonblock | SockCloexec
)

// Base strips the flag bits from a socket type.
func (st SocketType) Base() SocketType { return st &^ SockTypeFlags }

// AddressFamily enumerates address families crossing the boundary.
type AddressFamily int32

const (
	AFUnsupported AddressFamily = iota
	AFInet
	AFInet6
	AFUnspec
	AFUnix
	AFLocal
	AFIPX
	AFNetlink
	AFX25
	AFAX25
	AFATMPVC
	AFAppleTalk
	AFPacket
	AFAlg
)

// Poll events.
const (
	PollIn     = 0x001
	PollPri    = 0x002
	PollOut    = 0x004
	PollRDHup  = 0x008
	PollErr    = 0x010
	PollHup    = 0x020
	PollNval   = 0x040
	PollRDNorm = 0x080
	PollRDBand = 0x100
	PollWRNorm = 0x200
	PollWRBand = 0x400
)

// PollFD is the fixed-width pollfd record.
type PollFD struct {
	FD      int32
	Events  int16
	REvents int16
}

// Timeval is a fixed-width timeval.
type Timeval struct {
	Sec  int64
	Usec int64
}

// ITimerVal is a fixed-width itimerval.
type ITimerVal struct {
	Interval Timeval
	Value    Timeval
}

// RUsage is the fixed-width subset of rusage crossing the boundary.
type RUsage struct {
	UTime Timeval
	STime Timeval
}

// CPUSetMaxCPUs is the maximum number of CPUs a CPUSet represents. Chosen
// large enough to cover an enclave-native cpu_set_t.
const CPUSetMaxCPUs = 1024

const cpuSetWords = CPUSetMaxCPUs / 64

// CPUSet represents up to CPUSetMaxCPUs CPUs as a bitset. Bit n of Words[i]
// corresponds to CPU 64*i+n.
type CPUSet struct {
	Words [cpuSetWords]uint64
}

// Set marks cpu as a member of the set.
func (cs *CPUSet) Set(cpu int) {
	if cpu >= 0 && cpu < CPUSetMaxCPUs {
		cs.Words[cpu/64] |= 1 << (uint(cpu) % 64)
	}
}

// Clear removes cpu from the set.
func (cs *CPUSet) Clear(cpu int) {
	if cpu >= 0 && cpu < CPUSetMaxCPUs {
		cs.Words[cpu/64] &^= 1 << (uint(cpu) % 64)
	}
}

// IsSet reports whether cpu is in the set.
func (cs *CPUSet) IsSet(cpu int) bool {
	if cpu < 0 || cpu >= CPUSetMaxCPUs {
		return false
	}
	return cs.Words[cpu/64]&(1<<(uint(cpu)%64)) != 0
}

// Count returns the number of CPUs in the set.
func (cs *CPUSet) Count() int {
	count := 0
	for _, word := range cs.Words {
		for ; word != 0; word &= word - 1 {
			count++
		}
	}
	return count
}

// UtsNameFieldLength is the length of each utsname field: 255 characters of
// a fully qualified domain name per RFC 1035, plus a terminating null byte.
const UtsNameFieldLength = 256

// UtsName is the fixed-width utsname record. The domain name field is a GNU
// extension included unconditionally for compatibility.
type UtsName struct {
	SysName    [UtsNameFieldLength]byte
	NodeName   [UtsNameFieldLength]byte
	Release    [UtsNameFieldLength]byte
	Version    [UtsNameFieldLength]byte
	Machine    [UtsNameFieldLength]byte
	DomainName [UtsNameFieldLength]byte
}

func utsField(field []byte, value string) {
	n := copy(field[:UtsNameFieldLength-1], value)
	for i := n; i < UtsNameFieldLength; i++ {
		field[i] = 0
	}
}

func utsString(field []byte) string {
	for i, b := range field {
		if b == 0 {
			return string(field[:i])
		}
	}
	return string(field)
}

// SetSysName stores value, truncated to fit with a trailing null byte.
func (u *UtsName) SetSysName(value string) { utsField(u.SysName[:], value) }

// SetNodeName stores value, truncated to fit with a trailing null byte.
func (u *UtsName) SetNodeName(value string) { utsField(u.NodeName[:], value) }

// GetSysName returns the null-terminated system name.
func (u *UtsName) GetSysName() string { return utsString(u.SysName[:]) }

// GetNodeName returns the null-terminated node name.
func (u *UtsName) GetNodeName() string { return utsString(u.NodeName[:]) }
