package executor

import (
	"github.com/shirou/gopsutil/process"
)

// killDescendants kills every process below pid, deepest first.
func killDescendants(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return err
	}

	killChildren(p)

	return nil
}

func killChildren(p *process.Process) {
	children, err := p.Children()
	if err != nil {
		return
	}

	for _, c := range children {
		killChildren(c)
		_ = c.Kill()
	}
}

type rssMonitor struct {
	proc *process.Process
	peak uint64
}

func newRSSMonitor(pid int) *rssMonitor {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return &rssMonitor{}
	}

	return &rssMonitor{proc: p}
}

func (m *rssMonitor) sample() {
	if m.proc == nil {
		return
	}

	info, err := m.proc.MemoryInfo()
	if err != nil {
		return
	}

	if info.RSS > m.peak {
		m.peak = info.RSS
	}
}
