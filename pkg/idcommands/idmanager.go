package idcommands

import (
	"crypto/sha256"
	"fmt"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
)

var (
	hostID   = host.HostID
	hostname = os.Hostname
)

// GenerateServerID derives a stable, human-readable server id when none is
// configured: the short hostname followed by a hash prefix of the machine id.
// It returns "" when neither is available.
func GenerateServerID() string {
	name, err := hostname()
	if err != nil {
		name = ""
	}
	name = strings.ToLower(strings.SplitN(strings.TrimSpace(name), ".", 2)[0])

	machineID, err := hostID()
	if err != nil || strings.TrimSpace(machineID) == "" {
		return name
	}
	hash := sha256.Sum256([]byte(strings.TrimSpace(machineID)))
	suffix := fmt.Sprintf("%x", hash[:4])
	if name == "" {
		return suffix
	}
	return name + "-" + suffix
}
