//go:build linux && amd64

package sandbox

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// seccompDataOffNR and seccompDataOffArch are byte offsets into the
// kernel's struct seccomp_data: {int nr; __u32 arch; __u64 ip; __u64 args[6]}.
const (
	seccompDataOffNR   = 0
	seccompDataOffArch = 4
)

// allowedSyscalls is sufficient for typical interpreters and the
// coreutils programs the test scenarios exercise: file and process I/O,
// memory management, signals, clocks, and exec. Anything not listed
// falls through to the deny action, including every syscall named in the
// unconditional-deny set below.
var allowedSyscalls = []uintptr{
	unix.SYS_READ, unix.SYS_WRITE, unix.SYS_OPEN, unix.SYS_OPENAT, unix.SYS_CLOSE,
	unix.SYS_STAT, unix.SYS_FSTAT, unix.SYS_LSTAT, unix.SYS_NEWFSTATAT,
	unix.SYS_LSEEK, unix.SYS_PREAD64, unix.SYS_PWRITE64, unix.SYS_READV, unix.SYS_WRITEV,
	unix.SYS_ACCESS, unix.SYS_FACCESSAT, unix.SYS_PIPE, unix.SYS_PIPE2,
	unix.SYS_DUP, unix.SYS_DUP2, unix.SYS_DUP3, unix.SYS_FCNTL,
	unix.SYS_MMAP, unix.SYS_MUNMAP, unix.SYS_MPROTECT, unix.SYS_BRK, unix.SYS_MADVISE,
	unix.SYS_RT_SIGACTION, unix.SYS_RT_SIGPROCMASK, unix.SYS_RT_SIGRETURN, unix.SYS_SIGALTSTACK,
	unix.SYS_IOCTL, unix.SYS_GETDENTS64, unix.SYS_GETCWD, unix.SYS_CHDIR, unix.SYS_READLINK, unix.SYS_READLINKAT,
	unix.SYS_UNAME, unix.SYS_GETRLIMIT, unix.SYS_SETRLIMIT, unix.SYS_PRLIMIT64, unix.SYS_SYSINFO,
	unix.SYS_SET_TID_ADDRESS, unix.SYS_SET_ROBUST_LIST, unix.SYS_RSEQ, unix.SYS_GETRANDOM,
	unix.SYS_FUTEX, unix.SYS_NANOSLEEP, unix.SYS_CLOCK_GETTIME, unix.SYS_CLOCK_NANOSLEEP, unix.SYS_SCHED_YIELD,
	unix.SYS_GETPID, unix.SYS_GETTID, unix.SYS_GETPPID, unix.SYS_GETUID, unix.SYS_GETGID,
	unix.SYS_GETEUID, unix.SYS_GETEGID, unix.SYS_WAIT4, unix.SYS_EXIT, unix.SYS_EXIT_GROUP,
	unix.SYS_EXECVE, unix.SYS_ARCH_PRCTL, unix.SYS_PRCTL,
}

// deniedSyscalls is the minimum unconditional-deny set. The default
// action for anything not in allowedSyscalls is already deny, so this
// list only documents the policy: the filter program does not read it,
// and nothing checks it against the allowlist above.
var deniedSyscalls = []uintptr{
	unix.SYS_SOCKET, unix.SYS_CONNECT, unix.SYS_BIND, unix.SYS_LISTEN, unix.SYS_ACCEPT, unix.SYS_ACCEPT4,
	unix.SYS_MOUNT, unix.SYS_UMOUNT2, unix.SYS_PIVOT_ROOT, unix.SYS_PTRACE,
	unix.SYS_KEXEC_LOAD, unix.SYS_INIT_MODULE, unix.SYS_FINIT_MODULE, unix.SYS_DELETE_MODULE,
	unix.SYS_REBOOT, unix.SYS_CLOCK_SETTIME,
	unix.SYS_SETUID, unix.SYS_SETGID, unix.SYS_SETREUID, unix.SYS_SETREGID,
	unix.SYS_SETRESUID, unix.SYS_SETRESGID, unix.SYS_SETFSUID, unix.SYS_SETFSGID,
}

// buildFilterProgram assembles a strict-deny BPF program: load the
// syscall's architecture and number, kill the process unless the
// architecture is x86_64 and the number is on the allowlist.
func buildFilterProgram() []unix.SockFilter {
	prog := []unix.SockFilter{
		bpfStmt(unix.BPF_LD|unix.BPF_W|unix.BPF_ABS, seccompDataOffArch),
		bpfJump(unix.BPF_JMP|unix.BPF_JEQ|unix.BPF_K, uint32(unix.AUDIT_ARCH_X86_64), 1, 0),
		bpfStmt(unix.BPF_RET|unix.BPF_K, uint32(unix.SECCOMP_RET_KILL_PROCESS)),
		bpfStmt(unix.BPF_LD|unix.BPF_W|unix.BPF_ABS, seccompDataOffNR),
	}

	n := len(allowedSyscalls)
	for i, nr := range allowedSyscalls {
		// A match jumps forward past the remaining checks to RET_ALLOW.
		// A mismatch falls through to the next check, except on the
		// last entry where it falls through past RET_ALLOW to RET_KILL.
		jt := uint8(n - 1 - i)
		jf := uint8(0)
		if i == n-1 {
			jf = 1
		}
		prog = append(prog, bpfJump(unix.BPF_JMP|unix.BPF_JEQ|unix.BPF_K, uint32(nr), jt, jf))
	}
	prog = append(prog,
		bpfStmt(unix.BPF_RET|unix.BPF_K, uint32(unix.SECCOMP_RET_ALLOW)),
		bpfStmt(unix.BPF_RET|unix.BPF_K, uint32(unix.SECCOMP_RET_KILL_PROCESS)),
	)
	return prog
}

func bpfStmt(code uint16, k uint32) unix.SockFilter {
	return unix.SockFilter{Code: code, Jt: 0, Jf: 0, K: k}
}

func bpfJump(code uint16, k uint32, jt, jf uint8) unix.SockFilter {
	return unix.SockFilter{Code: code, Jt: jt, Jf: jf, K: k}
}

// installSeccomp locks down privilege escalation and installs the
// strict-deny filter on the calling thread and its children. Must be
// called after namespaces and mounts are set up and immediately before
// exec, since it cannot be undone.
func installSeccomp() error {
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return &Error{Op: "prctl(no_new_privs)", Err: err}
	}

	filter := buildFilterProgram()
	prog := unix.SockFprog{
		Len:    uint16(len(filter)),
		Filter: &filter[0],
	}

	if err := unix.Prctl(unix.PR_SET_SECCOMP, uintptr(unix.SECCOMP_MODE_FILTER), uintptr(unsafe.Pointer(&prog)), 0, 0); err != nil {
		return &Error{Op: "prctl(seccomp)", Err: err}
	}
	return nil
}
