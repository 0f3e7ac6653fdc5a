//go:build linux

package rttinfo

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/docker/docker/pkg/parsers/kernel"
	"github.com/higebu/netfd"
	"golang.org/x/sys/unix"
)

// minKernelVersion is the oldest kernel TCP_INFO's RTT fields are trusted
// on; below this, sampling is refused rather than risk a misparsed struct
// (TCP_INFO itself dates to 2.4, but the fields this package reads were
// only reliably populated from 2.6 onward across distros this testbed
// targets).
var minKernelVersion = kernel.VersionInfo{Kernel: 2, Major: 6, Minor: 0}

var (
	versionOnce  sync.Once
	versionOK    bool
	versionOKErr error
)

func checkKernelVersion() (bool, error) {
	versionOnce.Do(func() {
		v, err := kernel.GetKernelVersion()
		if err != nil {
			versionOKErr = fmt.Errorf("rttinfo: detecting kernel version: %w", err)
			return
		}
		versionOK = kernel.CompareKernelVersion(*v, minKernelVersion) >= 0
	})
	return versionOK, versionOKErr
}

func sampleTCPConn(conn *net.TCPConn) (Sample, error) {
	if ok, err := checkKernelVersion(); err != nil || !ok {
		if err != nil {
			return Sample{}, err
		}
		return Sample{}, ErrUnsupported
	}

	fd := netfd.GetFdFromConn(conn)
	if fd < 0 {
		return Sample{}, ErrUnsupported
	}

	info, err := unix.GetsockoptTCPInfo(fd, unix.IPPROTO_TCP, unix.TCP_INFO)
	if err != nil {
		return Sample{}, fmt.Errorf("rttinfo: getsockopt TCP_INFO: %w", err)
	}

	return Sample{
		RTT:    time.Duration(info.Rtt) * time.Microsecond,
		RTTVar: time.Duration(info.Rttvar) * time.Microsecond,
	}, nil
}
