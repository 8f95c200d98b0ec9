package gamestream

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yly97/gamestream/pkg/transport"
)

// Version is a host version of the form major.minor.build.revision.
type Version struct {
	Major    int
	Minor    int
	Build    int
	Revision int
}

// ParseVersion parses a dotted version; missing trailing parts are zero.
func ParseVersion(s string) (Version, error) {
	var v Version
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) == 0 || len(parts) > 4 || parts[0] == "" {
		return v, fmt.Errorf("invalid version %q", s)
	}
	fields := []*int{&v.Major, &v.Minor, &v.Build, &v.Revision}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("invalid version %q", s)
		}
		*fields[i] = n
	}
	return v, nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

// ServerInfo describes a connected host. It is not modified after Connect.
type ServerInfo struct {
	Host          string
	UniqueID      string // client id sent with every request
	StatusCode    int
	ServerVersion Version
	AppVersion    string
	PairStatus    bool
	Hostname      string
	HostUniqueID  string
}

func parseServerInfo(host, uniqueID string, root *transport.Node) (*ServerInfo, error) {
	code, ok := root.Attr("status_code")
	if !ok {
		return nil, fmt.Errorf("%w: serverinfo: missing status_code", transport.ErrMalformedResponse)
	}
	statusCode, err := strconv.Atoi(code)
	if err != nil {
		return nil, fmt.Errorf("%w: serverinfo: status_code %q", transport.ErrMalformedResponse, code)
	}
	info := &ServerInfo{
		Host:       host,
		UniqueID:   uniqueID,
		StatusCode: statusCode,
	}
	if statusCode != 200 {
		return info, nil
	}

	appVersion, ok := root.ChildText("appversion")
	if !ok {
		return nil, fmt.Errorf("%w: serverinfo: missing appversion", transport.ErrMalformedResponse)
	}
	if info.ServerVersion, err = ParseVersion(appVersion); err != nil {
		return nil, fmt.Errorf("%w: serverinfo: %v", transport.ErrMalformedResponse, err)
	}
	info.AppVersion = appVersion
	info.Hostname, _ = root.ChildText("hostname")
	info.HostUniqueID, _ = root.ChildText("uniqueid")
	pairStatus, _ := root.ChildText("PairStatus")
	info.PairStatus = pairStatus == "1"
	return info, nil
}
