package kernel

import (
	"fmt"
	"strings"
	"sync"

	"github.com/brickingsoft/errors"
	"golang.org/x/sys/unix"
)

var ErrUnknownVersion = errors.Define("kernel version is unknown")

type Version struct {
	Kernel int
	Major  int
	Minor  int
	Flavor string
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d%s", v.Kernel, v.Major, v.Minor, v.Flavor)
}

func Compare(a, b Version) int {
	if a.Kernel > b.Kernel {
		return 1
	} else if a.Kernel < b.Kernel {
		return -1
	}

	if a.Major > b.Major {
		return 1
	} else if a.Major < b.Major {
		return -1
	}

	if a.Minor > b.Minor {
		return 1
	} else if a.Minor < b.Minor {
		return -1
	}

	return 0
}

func Check(k, major, minor int) (bool, error) {
	v, err := Get()
	if err != nil {
		return false, err
	}
	if Compare(v, Version{Kernel: k, Major: major, Minor: minor}) < 0 {
		return false, nil
	}
	return true, nil
}

var (
	version     Version
	versionErr  error
	versionOnce sync.Once
)

// Get parses the running kernel release once and caches the result.
func Get() (Version, error) {
	versionOnce.Do(func() {
		uts := unix.Utsname{}
		if err := unix.Uname(&uts); err != nil {
			versionErr = errors.From(ErrUnknownVersion, errors.WithWrap(err))
			return
		}
		version, versionErr = Parse(unix.ByteSliceToString(uts.Release[:]))
	})
	return version, versionErr
}

// Parse reads releases such as "6.8.0-45-generic" or "5.15".
func Parse(release string) (v Version, err error) {
	release = strings.TrimSpace(release)
	var partial string
	parsed, _ := fmt.Sscanf(release, "%d.%d%s", &v.Kernel, &v.Major, &partial)
	if parsed < 2 {
		err = errors.From(ErrUnknownVersion, errors.WithMeta("release", release))
		return
	}
	if parsed, _ = fmt.Sscanf(partial, ".%d%s", &v.Minor, &v.Flavor); parsed < 1 {
		v.Flavor = partial
	}
	return
}
